package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator validates tool arguments against JSON Schema documents.
// Schemas are compiled once by Add; Add must not be called concurrently
// with Validate.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator creates a new Validator with no schemas.
func NewValidator() *Validator {
	return &Validator{
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Add compiles schemaDoc and stores it under name.
func (v *Validator) Add(name string, schemaDoc json.RawMessage) error {
	var schemaMap any
	if err := json.Unmarshal(schemaDoc, &schemaMap); err != nil {
		return fmt.Errorf("failed to unmarshal schema %q: %w", name, err)
	}

	loc := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, schemaMap); err != nil {
		return fmt.Errorf("failed to add resource %q: %w", name, err)
	}
	compiled, err := c.Compile(loc)
	if err != nil {
		return fmt.Errorf("failed to compile schema %q: %w", name, err)
	}

	v.schemas[name] = compiled
	return nil
}

// Validate validates payload against the schema stored under name.
// Returns nil if valid, or an *Error listing each violation.
func (v *Validator) Validate(name string, payload map[string]any) error {
	compiled, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("no schema registered for %q", name)
	}

	if payload == nil {
		payload = map[string]any{}
	}
	err := compiled.Validate(payload)
	if err == nil {
		return nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	return &Error{Violations: violations(verr.DetailedOutput())}
}

// Error is a schema validation failure.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	if len(e.Violations) == 0 {
		return "invalid arguments"
	}
	return "invalid arguments: " + strings.Join(e.Violations, "; ")
}

// violations flattens the detailed output tree into one message per leaf.
func violations(unit *jsonschema.OutputUnit) []string {
	var out []string
	var walk func(u *jsonschema.OutputUnit)
	walk = func(u *jsonschema.OutputUnit) {
		if len(u.Errors) == 0 {
			if u.Error == nil {
				return
			}
			msg := u.Error.String()
			if loc := strings.TrimPrefix(u.InstanceLocation, "/"); loc != "" {
				msg = loc + ": " + msg
			}
			out = append(out, msg)
			return
		}
		for i := range u.Errors {
			walk(&u.Errors[i])
		}
	}
	walk(unit)
	return out
}
