package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/storesync/backend/internal/interfaces/http/dto"
)

// TagStorefrontURL accepts an absolute http or https URL with a host and no
// query or fragment, the form in which storefront base URLs are stored
const TagStorefrontURL = "storefront_url"

// SetupValidator makes gin's validator report fields by their json or form
// name and registers the storefront_url tag
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(fieldName)
	_ = v.RegisterValidation(TagStorefrontURL, validateStorefrontURL)
}

func fieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form", "uri"} {
		name, _, _ := strings.Cut(fld.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

func validateStorefrontURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.RawQuery == "" && u.Fragment == "" && u.User == nil
}

// FormatValidationErrors turns binding errors into the standard error
// envelope. Errors that are not field validation failures, such as malformed
// JSON, produce a response without details.
func FormatValidationErrors(err error, requestID string) dto.Response {
	var details []dto.ValidationDetail
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details = make([]dto.ValidationDetail, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, dto.ValidationDetail{
				Field:   fe.Field(),
				Message: validationMessage(fe),
			})
		}
	}
	return dto.NewValidationErrorResponse("Request validation failed", requestID, details)
}

// HandleValidationError writes a 400 with the formatted validation errors
func HandleValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, FormatValidationErrors(err, GetRequestID(c)))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "min", "max":
		return boundMessage(fe)
	case "gt":
		return "Must be greater than " + fe.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "url":
		return "Invalid URL format"
	case "http_url":
		return "Must be an http or https URL"
	case TagStorefrontURL:
		return "Must be an http or https base URL without query, fragment or credentials"
	}
	return "Invalid value"
}

// boundMessage words min and max by the kind of field they constrain
func boundMessage(fe validator.FieldError) string {
	word := "at least"
	if fe.Tag() == "max" {
		word = "at most"
	}
	switch fe.Kind() {
	case reflect.String:
		return "Must be " + word + " " + fe.Param() + " characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return "Must contain " + word + " " + fe.Param() + " entries"
	}
	return "Must be " + word + " " + fe.Param()
}
