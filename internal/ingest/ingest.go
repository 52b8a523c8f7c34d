// Package ingest decodes raw ticket payloads (JSON, JSON with comments, YAML)
// into untyped values ready for sanitization.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Format names a payload encoding.
type Format string

// Supported formats. FormatAuto sniffs the first significant byte.
const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// wrapperKeys are envelope fields some backends put around the ticket list.
var wrapperKeys = []string{"tickets", "data", "items"}

var utf8BOM = []byte("\uFEFF")

// Decode parses data into untyped values. Only a payload that cannot be parsed
// at all is an error; shape problems are left for the sanitizer.
func Decode(data []byte, format Format) (any, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if format == FormatAuto {
		format = sniff(data)
	}

	var v any
	switch format {
	case FormatJSON:
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, fmt.Errorf("ingest: parse json: %w", err)
		}
		if err := json.Unmarshal(std, &v); err != nil {
			return nil, fmt.Errorf("ingest: decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("ingest: decode yaml: %w", err)
		}
		v = normalize(v)
	default:
		return nil, fmt.Errorf("ingest: unknown format %q", format)
	}
	return unwrap(v), nil
}

// FormatForPath picks a format from a file extension.
func FormatForPath(path string) Format {
	switch {
	case hasSuffix(path, ".yaml"), hasSuffix(path, ".yml"):
		return FormatYAML
	case hasSuffix(path, ".json"), hasSuffix(path, ".jsonc"):
		return FormatJSON
	}
	return FormatAuto
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{' || trimmed[0] == '/') {
		return FormatJSON
	}
	return FormatYAML
}

// unwrap returns the ticket list from a {"tickets": [...]} style envelope.
func unwrap(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for _, k := range wrapperKeys {
		if inner, ok := obj[k].([]any); ok {
			return inner
		}
	}
	return v
}

// normalize lowers YAML-specific shapes to what encoding/json would produce.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalize(e)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		for i, e := range t {
			t[i] = normalize(e)
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}
