package params

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var sessionSchemaJSON string

// SchemaError reports a document that failed schema validation. The message
// is truncated to the first line of the validator output so multi-line
// internal diagnostics never reach the user-facing error channel.
type SchemaError struct {
	msg string
}

func (e *SchemaError) Error() string {
	return e.msg
}

// SchemaValidator validates session documents against the embedded versioned
// session schema. The schema is compiled once at construction.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the embedded session schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("session.schema.json", strings.NewReader(sessionSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to register session schema: %w", err)
	}
	schema, err := compiler.Compile("session.schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile session schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// ValidateSession checks a decoded session document against the schema.
// The instance must originate from json.Unmarshal into interface{} shapes.
func (v *SchemaValidator) ValidateSession(session map[string]any) error {
	if err := v.schema.Validate(any(session)); err != nil {
		return &SchemaError{msg: "incorrect session file formatting: " + firstLine(err.Error())}
	}
	return nil
}

// ValidateDocument checks a parameter document against the schema's
// parameters contract by wrapping it the way a session file would.
func (v *SchemaValidator) ValidateDocument(doc Document) error {
	// Normalize through JSON so typed maps become the interface{} shapes
	// the schema validator expects.
	raw, err := json.Marshal(map[string]any{"parameters": doc})
	if err != nil {
		return fmt.Errorf("failed to serialize document for validation: %w", err)
	}
	var instance map[string]any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("failed to normalize document for validation: %w", err)
	}
	return v.ValidateSession(instance)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
