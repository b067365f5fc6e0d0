package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Status grades how much of a model reply could be trusted.
type Status string

const (
	StatusOk        Status = "ok"
	StatusPartialOk Status = "partial_ok"
	StatusFailed    Status = "failed"
)

var (
	codeFenceRegex = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*\\n?(.*?)\\n?```\\s*$")
	objectRegex    = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseResult is the outcome of decoding a model reply into T.
//   - Ok: valid JSON with every required key.
//   - PartialOk: valid or repaired JSON with required keys missing (see Violations).
//   - Failed: nothing usable; Value is the zero value and Raw keeps the reply.
type ParseResult[T any] struct {
	Status     Status
	Value      T
	Violations []string
	Raw        string
	Repaired   bool
}

// Parse decodes raw into T. Code fences are stripped first; when the result
// still does not decode, the text is run through jsonrepair once.
func Parse[T any](raw string, required ...string) ParseResult[T] {
	result := ParseResult[T]{Status: StatusFailed, Raw: raw}

	text := stripFences(strings.TrimSpace(raw))
	if text == "" {
		result.Violations = []string{"empty response"}
		return result
	}

	value, keys, err := decode[T](text)
	if err != nil {
		repaired, rerr := repair(text)
		if rerr != nil {
			result.Violations = []string{fmt.Sprintf("invalid json: %v", err)}
			return result
		}
		value, keys, err = decode[T](repaired)
		if err != nil {
			result.Violations = []string{fmt.Sprintf("invalid json after repair: %v", err)}
			return result
		}
		result.Repaired = true
	}

	result.Value = value
	result.Status = StatusOk
	for _, key := range required {
		if _, ok := keys[key]; !ok {
			result.Violations = append(result.Violations, fmt.Sprintf("missing required key %q", key))
		}
	}
	if len(result.Violations) > 0 {
		result.Status = StatusPartialOk
	}
	return result
}

func decode[T any](text string) (T, map[string]json.RawMessage, error) {
	var value T
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return value, nil, err
	}
	// Non-object payloads decode into T but carry no keys.
	var keys map[string]json.RawMessage
	_ = json.Unmarshal([]byte(text), &keys)
	return value, keys, nil
}

func repair(text string) (string, error) {
	if m := objectRegex.FindString(text); m != "" {
		text = m
	}
	return jsonrepair.JSONRepair(text)
}

func stripFences(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
