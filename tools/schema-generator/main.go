// Command schema-generator writes the JSON Schema for cowork.yml so editors
// can offer completion and validation.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/cowork/config"
)

func main() {
	out := flag.String("out", "schema/cowork.schema.json", "Output path")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*out, append(schemaBytes, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated cowork schema at %s", *out)
}
