package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Validator checks a response body against a named shape.
type Validator interface {
	Validate(schema string, data []byte) error
}

// RequiredFields validates that JSON objects, or every object of a JSON
// array, carry the listed keys. Unknown schemas pass.
type RequiredFields map[string][]string

// DefaultValidator covers the payloads the pipeline decodes.
func DefaultValidator() RequiredFields {
	return RequiredFields{
		"account":      {"id", "username", "acct"},
		"status":       {"id", "content", "account"},
		"notification": {"id", "type"},
		"relationship": {"id"},
		"instance":     {"title"},
		"context":      {"ancestors", "descendants"},
		"list":         {"id", "title"},
		"media":        {"id", "type"},
	}
}

func (r RequiredFields) Validate(schema string, data []byte) error {
	required, ok := r[schema]
	if !ok || len(required) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%s: invalid json: %w", schema, err)
	}

	switch v := decoded.(type) {
	case map[string]any:
		return checkFields(schema, v, required)
	case []any:
		for i, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("%s[%d]: expected object", schema, i)
			}
			if err := checkFields(fmt.Sprintf("%s[%d]", schema, i), obj, required); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: expected object or array", schema)
	}
}

func checkFields(name string, obj map[string]any, required []string) error {
	var missing []string
	for _, key := range required {
		if _, ok := obj[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: missing %s", name, strings.Join(missing, ", "))
	}
	return nil
}

// validateResponse fails open: a mismatch is logged and the data is used
// as-is, since servers differ in how strictly they follow the API.
func validateResponse(v Validator, schema string, data []byte, logger *logging.Logger) {
	if v == nil || schema == "" {
		return
	}
	if err := v.Validate(schema, data); err != nil && logger != nil {
		logger.Warn("response validation failed",
			zap.String("schema", schema),
			zap.Error(err))
	}
}
