package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/grovetools/cowork/errors"
)

const schemaResource = "cowork.json"

var (
	schemaOnce     sync.Once
	compiledSchema *SchemaValidator
	compileErr     error
)

// SchemaValidator validates configuration documents against the generated
// JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the schema reflected from Config.
func NewSchemaValidator() (*SchemaValidator, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to generate schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResource, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &SchemaValidator{schema: schema}, nil
}

// Validate validates configuration data against the schema.
// The data is round-tripped through JSON so any decoded document works.
func (v *SchemaValidator) Validate(configData interface{}) error {
	jsonData, err := json.Marshal(configData)
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON for validation: %w", err)
	}

	var dataToValidate interface{}
	if err := json.Unmarshal(jsonData, &dataToValidate); err != nil {
		return fmt.Errorf("failed to unmarshal JSON for validation: %w", err)
	}

	if err := v.schema.Validate(dataToValidate); err != nil {
		if validationErr, ok := err.(*jsonschema.ValidationError); ok {
			var errorMessages []string
			collectErrors(validationErr, &errorMessages)
			return fmt.Errorf("schema validation failed:\n%s", strings.Join(errorMessages, "\n"))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateDocument checks a decoded config document against the schema.
func ValidateDocument(doc map[string]interface{}) error {
	schemaOnce.Do(func() {
		compiledSchema, compileErr = NewSchemaValidator()
	})
	if compileErr != nil {
		return errors.Wrap(compileErr, errors.ErrCodeInternal, "config schema unavailable")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid configuration")
	}
	return nil
}

// collectErrors recursively collects all validation errors into a slice
func collectErrors(err *jsonschema.ValidationError, messages *[]string) {
	if len(err.Causes) == 0 {
		location := err.InstanceLocation
		if location == "" {
			location = "/"
		}
		*messages = append(*messages, fmt.Sprintf("- %s: %s", location, err.Message))
	}
	for _, cause := range err.Causes {
		collectErrors(cause, messages)
	}
}
