package config

//go:generate go run ../tools/schema-generator -out ../schema/cowork.schema.json

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// durationPattern matches the strings accepted by time.ParseDuration.
const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

// GenerateSchema generates the JSON Schema for cowork.yml.
func GenerateSchema() ([]byte, error) {
	return json.MarshalIndent(reflectSchema(), "", "  ")
}

func reflectSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		// Do not allow unknown fields so typos surface as errors.
		AllowAdditionalProperties: false,
		// Inline every nested section instead of using $ref.
		ExpandedStruct: true,
		DoNotReference: true,
		Anonymous:      true,
		// Every key is optional; defaults fill the gaps.
		RequiredFromJSONSchemaTags: true,
		// Use YAML field names for property names
		FieldNameTag: "yaml",
		Mapper:       mapDuration,
	}

	schema := r.Reflect(&Config{})
	schema.Title = "cowork Configuration"
	schema.Description = "Schema for cowork.yml and cowork.toml."
	schema.Version = "http://json-schema.org/draft-07/schema#"
	return schema
}

// mapDuration describes durations the way they are written in config
// files, as Go duration strings.
func mapDuration(t reflect.Type) *jsonschema.Schema {
	if t != reflect.TypeOf(time.Duration(0)) {
		return nil
	}
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     durationPattern,
		Description: "Go duration such as 30s, 3m or 1h",
	}
}
