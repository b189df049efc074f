package tutor

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrExtraction marks text from which no schema-conformant object could be
// recovered, even after fence stripping, balanced scanning and repair.
var ErrExtraction = errors.New("tutor: no parseable object in generated text")

// ParsedTurn is the object the generation service is asked to produce.
type ParsedTurn struct {
	Message          string   `json:"message"`
	SuggestedReplies []string `json:"suggested_replies,omitempty"`
	NextState        *State   `json:"next_state,omitempty"`
}

// turnSchemaJSON is the wire schema for a generated turn. Only message is
// required; everything else the engine can synthesize or clamp.
const turnSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["message"],
	"properties": {
		"message": {"type": "string"},
		"suggested_replies": {"type": "array", "items": {"type": "string"}},
		"next_state": {
			"type": "object",
			"properties": {
				"stage": {"type": "string"},
				"idx": {"type": "integer", "minimum": 0}
			}
		}
	}
}`

var turnSchema = mustSchema(turnSchemaJSON)

func mustSchema(raw string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("tutor: bad embedded schema: %v", err))
	}
	return s
}

// ExtractTurn recovers a ParsedTurn from raw generated text. It returns
// either a fully valid turn or ErrExtraction, never a truncated guess.
func ExtractTurn(raw string) (ParsedTurn, error) {
	obj, err := ExtractObject(raw)
	if err != nil {
		return ParsedTurn{}, err
	}

	result, err := turnSchema.Validate(gojsonschema.NewStringLoader(obj))
	if err != nil {
		return ParsedTurn{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if !result.Valid() {
		return ParsedTurn{}, fmt.Errorf("%w: %s", ErrExtraction, schemaErrors(result))
	}

	var turn ParsedTurn
	if err := json.Unmarshal([]byte(obj), &turn); err != nil {
		return ParsedTurn{}, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return turn, nil
}

func schemaErrors(result *gojsonschema.Result) string {
	parts := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

// objectPattern greedily spans the first `{` to the last `}`. It is the
// cheap middle step; the balanced scan below handles the cases it cannot.
var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractObject recovers the JSON object embedded in raw text. Each step
// runs only when the previous one failed:
//
//  1. parse the trimmed text directly
//  2. strip code fences and retry
//  3. greedy-regex the first {...} span and retry
//  4. balanced brace scan (string- and escape-aware) and retry
//  5. minimal repair of the best candidate (trailing commas, raw newlines
//     inside string literals) and one final retry
func ExtractObject(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrExtraction
	}

	candidates := []string{trimmed}
	if stripped := stripFences(trimmed); stripped != trimmed && stripped != "" {
		candidates = append(candidates, stripped)
	}
	if span := objectPattern.FindString(trimmed); span != "" {
		candidates = append(candidates, span)
	}
	balanced, hasBalanced := balancedObject(trimmed)
	if hasBalanced {
		candidates = append(candidates, balanced)
	}

	for _, c := range candidates {
		if json.Valid([]byte(c)) {
			return c, nil
		}
	}

	// Repair pass over the balanced candidate; if the scan found nothing
	// balanced, the fence-stripped text is the best span available.
	repairable := candidates[len(candidates)-1]
	if repaired := repairJSON(repairable); json.Valid([]byte(repaired)) {
		return repaired, nil
	}
	return "", ErrExtraction
}

// stripFences removes a leading/trailing ``` fence, with or without a
// language tag on the opening line.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		// Drop a language tag such as "json" on the opening fence line.
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			firstLine := strings.TrimSpace(s[:nl])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}") && len(firstLine) <= 16 {
				s = s[nl+1:]
			}
		}
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// balancedObject scans for the first brace-balanced object span. Braces
// inside quoted strings do not move the depth counter, and an escaped
// quote does not close a string, so a message value like "use {x} here"
// cannot terminate the span early.
func balancedObject(s string) (string, bool) {
	depth := 0
	start := -1
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// repairJSON applies the two repairs worth doing without a real parser:
// dropping a trailing comma immediately before a closing brace/bracket,
// and escaping raw newline characters that appear inside string literals.
// Both are done in a single string-aware pass.
func repairJSON(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
				b.WriteByte(c)
			case c == '\\':
				escaped = true
				b.WriteByte(c)
			case c == '"':
				inString = false
				b.WriteByte(c)
			case c == '\n':
				b.WriteString(`\n`)
			case c == '\r':
				b.WriteString(`\r`)
			case c == '\t':
				b.WriteString(`\t`)
			default:
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case ',':
			if next := nextNonSpace(s, i+1); next == '}' || next == ']' {
				continue // trailing comma
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func nextNonSpace(s string, from int) byte {
	for i := from; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}
