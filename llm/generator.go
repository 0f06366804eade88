package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrMalformedResponse is returned when model output cannot be decoded as the expected
// structured data.
var ErrMalformedResponse = errors.New("malformed response")

// Generator is the capability every pipeline stage calls: one prompt in, one JSON object out.
//
// Implementations own transport, timeouts and retries. A nil error means the model returned
// a JSON object.
type Generator interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (map[string]any, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt, systemPrompt string) (map[string]any, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt, systemPrompt string) (map[string]any, error) {
	return f(ctx, prompt, systemPrompt)
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
)

// ParseObject decodes model text into a JSON object. Markdown code fences and chatter
// around the object are tolerated.
func ParseObject(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out, nil
	}

	candidate := ""
	if m := fencedJSON.FindStringSubmatch(text); len(m) > 1 {
		candidate = m[1]
	} else if m := bareJSON.FindString(text); m != "" {
		candidate = m
	}
	if candidate == "" {
		return nil, fmt.Errorf("%w: no JSON object in %q", ErrMalformedResponse, truncate(text, 120))
	}
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%w: response is null", ErrMalformedResponse)
	}
	return out, nil
}

// Decode converts a raw object into a typed payload using its json tags. Numbers and
// numeric strings are converted weakly, so "3" and 3.0 both decode into an int field.
// A fractional number bound for an integer field is rejected rather than truncated.
func Decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       integralFloatHook,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func integralFloatHook(from, to reflect.Type, data any) (any, error) {
	switch from.Kind() {
	case reflect.Float32, reflect.Float64:
	default:
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%v is not a whole number", f)
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
