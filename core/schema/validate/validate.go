package validate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kaptinlin/jsonschema"

	"github.com/davidahmann/archiveprep/core/schema"
)

var compiled struct {
	sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// ValidateJSON validates one JSON document against the embedded schema name.
func ValidateJSON(schemaName string, data []byte) error {
	compiledSchema, err := loadSchema(schemaName)
	if err != nil {
		return err
	}
	return validateJSON(compiledSchema, data)
}

func ValidateJSONFile(schemaName, jsonPath string) error {
	compiledSchema, err := loadSchema(schemaName)
	if err != nil {
		return err
	}
	// #nosec G304 -- json path is an explicit artifact location.
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("read json: %w", err)
	}
	return validateJSON(compiledSchema, data)
}

// ValidateJSONL validates every non-empty line of a JSONL document.
func ValidateJSONL(schemaName string, data []byte) error {
	compiledSchema, err := loadSchema(schemaName)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}
		if err := validateJSON(compiledSchema, trimmed); err != nil {
			return fmt.Errorf("jsonl line %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return nil
}

func loadSchema(schemaName string) (*jsonschema.Schema, error) {
	compiled.Lock()
	defer compiled.Unlock()
	if cached, ok := compiled.schemas[schemaName]; ok {
		return cached, nil
	}
	data, err := schema.Load(schemaName)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	compiledSchema, err := compiler.Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", schemaName, err)
	}
	if compiled.schemas == nil {
		compiled.schemas = map[string]*jsonschema.Schema{}
	}
	compiled.schemas[schemaName] = compiledSchema
	return compiledSchema, nil
}

func validateJSON(compiledSchema *jsonschema.Schema, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("schema validation failed: invalid json")
	}
	result := compiledSchema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
