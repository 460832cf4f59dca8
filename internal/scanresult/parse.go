// Package scanresult reads scan result documents produced by the scanner
// and checks them against the embedded schema before they reach the
// quarantine manager.
package scanresult

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/jsonc"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"go-quarantine/internal/model"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// ErrInvalidScanResult wraps schema violations.
var ErrInvalidScanResult = errors.New("invalid scan result")

// ReadFile parses the scan result stored at path.
func ReadFile(path string) (model.ScanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("read scan result: %w", err)
	}

	result, err := Parse(data)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("%s: %w", path, err)
	}
	return result, nil
}

// Parse accepts a JSON document, with comments and trailing commas allowed,
// or a YAML document.
func Parse(data []byte) (model.ScanResult, error) {
	var result model.ScanResult

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return result, errors.New("empty scan result")
	}

	var document any
	if trimmed[0] == '{' {
		stripped := jsonc.ToJSON(trimmed)
		if err := json.Unmarshal(stripped, &document); err != nil {
			return result, fmt.Errorf("parsing scan result: %w", err)
		}
		if err := validate(document); err != nil {
			return result, err
		}
		if err := json.Unmarshal(stripped, &result); err != nil {
			return result, fmt.Errorf("parsing scan result: %w", err)
		}
		return result, nil
	}

	if err := yaml.Unmarshal(trimmed, &document); err != nil {
		return result, fmt.Errorf("parsing scan result: %w", err)
	}
	if err := validate(document); err != nil {
		return result, err
	}
	if err := yaml.Unmarshal(trimmed, &result); err != nil {
		return result, fmt.Errorf("parsing scan result: %w", err)
	}
	return result, nil
}

func validate(document any) error {
	outcome, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(document))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if outcome.Valid() {
		return nil
	}

	problems := make([]string, 0, len(outcome.Errors()))
	for _, desc := range outcome.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidScanResult, strings.Join(problems, "; "))
}
