package router

import (
	"github.com/gin-gonic/gin"
	_ "github.com/storesync/backend/docs"
	"github.com/storesync/backend/internal/interfaces/http/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// SwaggerPrefix is where the API documentation is served
const SwaggerPrefix = "/swagger/"

// registerSwagger mounts the UI and doc.json behind SwaggerProtection.
// auth is the strict JWT check used when the config requires it.
func registerSwagger(engine *gin.Engine, cfg middleware.SwaggerConfig, auth gin.HandlerFunc) {
	engine.GET(SwaggerPrefix+"*any",
		middleware.SwaggerProtection(cfg, auth),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)
}
