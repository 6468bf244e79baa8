// Package docs holds the OpenAPI document served under /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag/v2"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/sync/batches": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Start a batch sync job",
                "parameters": [
                    {"description": "Batch request", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.StartBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/sync/batches/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Get batch job status",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/sync/batches/{id}/pause": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Pause a processing job",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/sync/batches/{id}/resume": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Resume a paused job",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/sync/batches/{id}/stop": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Stop a job for good",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/sync/batches/{id}/retry": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sync"],
                "summary": "Retry the failed items of a finished job",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Job ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stores"],
                "summary": "List destination stores",
                "parameters": [
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "type": "integer", "default": 20, "description": "Page size", "name": "page_size", "in": "query"},
                    {"type": "string", "description": "Name search", "name": "search", "in": "query"},
                    {"enum": ["active", "inactive"], "type": "string", "description": "Store status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["stores"],
                "summary": "Register a destination store",
                "parameters": [
                    {"description": "Store registration", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handler.CreateStoreRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stores"],
                "summary": "Get a destination store",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stores"],
                "summary": "Delete a destination store",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores/{id}/sync-records": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stores"],
                "summary": "List a store's sync ledger",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 100, "type": "integer", "default": 20, "description": "Page size", "name": "page_size", "in": "query"},
                    {"enum": ["pending", "synced", "error"], "type": "string", "description": "Record status", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores/{id}/stats": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Get a store's sync and sales summary",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores/{id}/top-products": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Get a store's best sellers",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true},
                    {"maximum": 100, "type": "integer", "default": 10, "description": "Number of products", "name": "n", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stores/{id}/sales/pull": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["sales"],
                "summary": "Pull a store's recent orders",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Store ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "default": "24h", "description": "Look-back window as a Go duration", "name": "window", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/stats/overview": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Get the cross-store summary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/system/info": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Get host limits and process usage",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        },
        "/system/ping": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Liveness ping",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/dto.Response"}}
                }
            }
        }
    },
    "definitions": {
        "dto.ErrorInfo": {
            "type": "object",
            "properties": {
                "code": {"type": "string", "example": "ERR_NOT_FOUND"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "timestamp": {"type": "string", "format": "date-time"},
                "help": {"type": "string"}
            }
        },
        "dto.Response": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "data": {},
                "error": {"$ref": "#/definitions/dto.ErrorInfo"},
                "meta": {"type": "object"}
            }
        },
        "handler.BatchOptionsRequest": {
            "type": "object",
            "properties": {
                "include_variations": {"type": "boolean", "example": true},
                "include_images": {"type": "boolean", "example": true},
                "include_categories": {"type": "boolean", "example": false},
                "preserve_prices": {"type": "boolean", "example": false},
                "update_stock": {"type": "boolean", "example": true},
                "batch_size": {"type": "integer", "maximum": 500, "minimum": 0, "example": 50},
                "priority": {"type": "integer", "maximum": 10, "minimum": 0, "example": 5}
            }
        },
        "handler.CreateStoreRequest": {
            "type": "object",
            "required": ["base_url", "consumer_key", "consumer_secret", "name"],
            "properties": {
                "name": {"type": "string", "maxLength": 200, "minLength": 1, "example": "EU Storefront"},
                "base_url": {"type": "string", "example": "https://eu.shop.example"},
                "consumer_key": {"type": "string", "example": "ck_0123"},
                "consumer_secret": {"type": "string", "example": "cs_0123"}
            }
        },
        "handler.StartBatchRequest": {
            "type": "object",
            "required": ["destination_store_ids"],
            "properties": {
                "work_item_ids": {"type": "array", "items": {"type": "integer"}},
                "all_syncable": {"type": "boolean", "example": false},
                "destination_store_ids": {"type": "array", "minItems": 1, "items": {"type": "string", "format": "uuid"}},
                "options": {"$ref": "#/definitions/handler.BatchOptionsRequest"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Bearer token authentication. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Storesync API",
	Description:      "Catalog sync engine pushing a source catalog to remote storefronts.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
