package validator

import (
	"fmt"
	"net/http"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

// OpenAPIValidator validates incoming requests against an OpenAPI schema
type OpenAPIValidator struct {
	swagger    *openapi3.T
	router     routers.Router
	schemaPath string
}

// NewOpenAPIValidator creates a new OpenAPI validator
func NewOpenAPIValidator(schemaPath string) (*OpenAPIValidator, error) {
	swagger, err := loadOpenAPISchema(schemaPath)
	if err != nil {
		return nil, err
	}

	router, err := gorillamux.NewRouter(swagger)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{
		swagger:    swagger,
		router:     router,
		schemaPath: schemaPath,
	}, nil
}

func loadOpenAPISchema(path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	swagger, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema from %s: %w", path, err)
	}

	if err := swagger.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	return swagger, nil
}

// Middleware returns a Gin middleware that rejects requests not matching the
// schema. Routes absent from the schema pass through unvalidated, so the
// streaming chat endpoint and websocket upgrade are unaffected.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := os.Stat(v.schemaPath); os.IsNotExist(err) {
			c.Next()
			return
		}

		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		requestValidationInput := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), requestValidationInput); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		c.Next()
	}
}
