package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/document-alerts/internal/models"
)

const fileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["rules"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer"},
    "rules": {"type": "array", "items": {"$ref": "#/definitions/rule"}}
  },
  "definitions": {
    "rule": {
      "type": "object",
      "required": ["kind"],
      "additionalProperties": false,
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "description": {"type": "string"},
        "kind": {"enum": ["keyword", "regex", "threshold"]},
        "scope": {"enum": ["document", "page"]},
        "keywords": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
        "match": {"enum": ["any", "all"]},
        "caseSensitive": {"type": "boolean"},
        "pattern": {"type": "string", "minLength": 1},
        "op": {"enum": ["gt", "gte", "lt", "lte", "eq"]},
        "value": {"type": "number"}
      },
      "allOf": [
        {"if": {"properties": {"kind": {"const": "keyword"}}}, "then": {"required": ["keywords"]}},
        {"if": {"properties": {"kind": {"const": "regex"}}}, "then": {"required": ["pattern"]}},
        {"if": {"properties": {"kind": {"const": "threshold"}}}, "then": {"required": ["op", "value"]}}
      ]
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func ruleFileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("rules.schema.json", fileSchema)
	})
	return schema, schemaErr
}

// File is the rule file layout.
type File struct {
	Version int          `yaml:"version,omitempty"`
	Rules   []Definition `yaml:"rules"`
}

// LoadFile reads and compiles a YAML rule file.
func LoadFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return Parse(data)
}

// Parse validates YAML rule file content against the rule file schema and
// compiles it. Every failure is a *models.RuleDefinitionError.
func Parse(data []byte) (*RuleSet, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &models.RuleDefinitionError{Index: -1, Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	// the schema validator works on JSON-decoded values
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, &models.RuleDefinitionError{Index: -1, Reason: fmt.Sprintf("unsupported yaml value: %v", err)}
	}
	var doc interface{}
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return nil, &models.RuleDefinitionError{Index: -1, Reason: err.Error()}
	}

	s, err := ruleFileSchema()
	if err != nil {
		return nil, fmt.Errorf("compile rule file schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, &models.RuleDefinitionError{Index: -1, Reason: err.Error()}
	}

	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, &models.RuleDefinitionError{Index: -1, Reason: err.Error()}
	}

	return Compile(file.Rules)
}
