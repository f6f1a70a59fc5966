package llm

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CheckAgainstSchema verifies that a provider response conforms to the given
// JSON schema. The schema is compiled per call; extraction runs once per
// document, so compilation cost is noise next to the provider round trip.
func CheckAgainstSchema(schema map[string]any, doc []byte) error {
	enc, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	compiled, err := jsonschema.CompileString("invoice.schema.json", string(enc))
	if err != nil {
		return fmt.Errorf("compile invoice schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("response violates invoice schema: %w", err)
	}
	return nil
}
