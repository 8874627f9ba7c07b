package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

const taskCreateSchemaJSON = `{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"description": {"type": ["string", "null"]},
		"due_date": {"type": ["string", "null"], "format": "date"}
	}
}`

const taskUpdateSchemaJSON = `{
	"type": "object",
	"properties": {
		"title": {"type": ["string", "null"], "minLength": 1},
		"description": {"type": ["string", "null"]},
		"status": {"enum": ["todo", "in_progress", "done", "blocked", null]},
		"due_date": {"type": ["string", "null"], "format": "date"}
	}
}`

const retrospectiveCreateSchemaJSON = `{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"summary": {"type": ["string", "null"]},
		"date": {"type": ["string", "null"], "format": "date"}
	}
}`

var (
	taskCreateSchema          = mustCompileSchema("task_create.json", taskCreateSchemaJSON)
	taskUpdateSchema          = mustCompileSchema("task_update.json", taskUpdateSchemaJSON)
	retrospectiveCreateSchema = mustCompileSchema("retrospective_create.json", retrospectiveCreateSchemaJSON)
)

// ValidationError is a request body that does not match its schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

type requestSchema struct {
	schema *jsonschema.Schema
}

func mustCompileSchema(name, source string) *requestSchema {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return &requestSchema{schema: compiler.MustCompile(name)}
}

func (s *requestSchema) validate(body []byte) error {
	var obj any
	if err := json.Unmarshal(body, &obj); err != nil {
		return &ValidationError{Message: "request body is not valid JSON"}
	}
	if err := s.schema.Validate(obj); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &ValidationError{Message: err.Error()}
	}

	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	path := strings.TrimPrefix(strings.ReplaceAll(leaf.InstanceLocation, "/", "."), ".")
	return &ValidationError{Path: path, Message: leaf.Message}
}
