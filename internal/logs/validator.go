package logs

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jimdaga/mediecho/internal/models"
	"github.com/kaptinlin/jsonschema"
)

//go:embed meta.schema.json
var metaSchemaJSON []byte

var (
	metaSchemaOnce sync.Once
	metaSchema     *jsonschema.Schema
	metaSchemaErr  error
)

func compiledMetaSchema() (*jsonschema.Schema, error) {
	metaSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		metaSchema, metaSchemaErr = compiler.Compile(metaSchemaJSON)
		if metaSchemaErr != nil {
			metaSchemaErr = fmt.Errorf("failed to compile meta schema: %w", metaSchemaErr)
		}
	})
	return metaSchema, metaSchemaErr
}

// MetaValidationError lists the schema violations of a meta object
type MetaValidationError struct {
	Problems []string
}

func (e *MetaValidationError) Error() string {
	return fmt.Sprintf("meta validation failed: %v", e.Problems)
}

// ParseMeta validates raw JSON against the meta schema and decodes it.
// Empty input and JSON null yield an empty meta.
func ParseMeta(raw json.RawMessage) (models.LogMeta, error) {
	var meta models.LogMeta
	if len(raw) == 0 || string(raw) == "null" {
		return meta, nil
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return meta, &MetaValidationError{Problems: []string{"meta must be valid JSON"}}
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		return meta, &MetaValidationError{Problems: []string{"meta must be an object"}}
	}

	schema, err := compiledMetaSchema()
	if err != nil {
		return meta, err
	}

	result := schema.Validate(obj)
	if !result.IsValid() {
		// Collect all validation errors
		var problems []string
		for field, evalErr := range result.Errors {
			problems = append(problems, fmt.Sprintf("meta %s: %s", field, evalErr.Error()))
		}
		sort.Strings(problems)
		return meta, &MetaValidationError{Problems: problems}
	}

	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, &MetaValidationError{Problems: []string{err.Error()}}
	}
	return meta, nil
}
