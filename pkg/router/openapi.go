package router

import (
	"os"
	"path/filepath"

	"lighttavern/backend/pkg/validator"
)

// AddOpenAPIValidation adds OpenAPI validation middleware to the router
func (r *Router) AddOpenAPIValidation(schemaPath string) {
	// Check if schema file exists
	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		r.Logger.Warn("OpenAPI schema file not found, skipping validation", "path", schemaPath)
		return
	}

	// Initialize OpenAPI validator
	v, err := validator.NewOpenAPIValidator(schemaPath)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return
	}

	// Add validator middleware
	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "schema", schemaPath)

	// Serve OpenAPI schema file
	schemaDir := filepath.Dir(schemaPath)
	schemaFile := filepath.Base(schemaPath)
	r.Engine.Static("/api/docs", schemaDir)
	r.Logger.Info("OpenAPI schema available at", "url", "/api/docs/"+schemaFile)
}
