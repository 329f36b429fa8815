package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// marshalPackages converts a package list to JSON TEXT for storage.
// HTML escaping is disabled so paths are stored as written.
func marshalPackages(pkgs []string) (string, error) {
	if pkgs == nil {
		pkgs = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pkgs); err != nil {
		return "", fmt.Errorf("marshal packages: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalPackages parses JSON TEXT to a package list.
func unmarshalPackages(data string) ([]string, error) {
	pkgs := []string{}
	if data == "" || data == "[]" {
		return pkgs, nil
	}
	if err := json.Unmarshal([]byte(data), &pkgs); err != nil {
		return nil, fmt.Errorf("unmarshal packages: %w", err)
	}
	return pkgs, nil
}
