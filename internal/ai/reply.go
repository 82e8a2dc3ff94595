package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrEmptyReply is returned when a model reply carries no JSON object.
var ErrEmptyReply = errors.New("model reply is empty")

// DecodeJSONReply parses a model reply that is expected to contain a JSON
// object, optionally wrapped in a markdown code block, into target.
// Field names follow `mapstructure` tags and values are weakly typed.
func DecodeJSONReply(raw string, target any) error {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return ErrEmptyReply
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return fmt.Errorf("parse model reply: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		DecodeHook:       boolHook,
	})
	if err != nil {
		return fmt.Errorf("build reply decoder: %w", err)
	}

	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}

	return nil
}

// ExtractJSON strips markdown fences and any prose around the first JSON object.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return raw
	}
	return raw[start : end+1]
}

func boolHook(from, to reflect.Value) (any, error) {
	if !from.IsValid() {
		return nil, nil
	}
	if to.Kind() != reflect.Bool {
		return from.Interface(), nil
	}
	return CoerceBool(from.Interface()), nil
}

// CoerceBool accepts the loose boolean spellings models tend to emit.
func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes" || lower == "safe"
	case float64:
		return val != 0
	default:
		return false
	}
}
