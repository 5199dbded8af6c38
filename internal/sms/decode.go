package sms

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// ErrMalformedPayload is returned when inbound data cannot be turned into a
// MessageEvent. Callers should treat it as a client error.
var ErrMalformedPayload = errors.New("malformed payload")

// FromValues builds an event from flat key/value pairs, as decoded from a query
// string or a form body. The result matches what FromJSON returns for the JSON
// encoding of the same pairs, including the replacement of invalid UTF-8.
func FromValues(values map[string]string) MessageEvent {
	fields := make(map[string]string, len(values))
	for k, v := range values {
		fields[validUTF8(k)] = validUTF8(v)
	}
	return MessageEvent{fields: fields}
}

// FromJSON parses a JSON object into an event. String values are kept as-is,
// numbers keep their literal text, booleans become "true"/"false" and null
// becomes "". Anything other than a single flat object fails with
// ErrMalformedPayload.
func FromJSON(data []byte) (MessageEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return MessageEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return MessageEvent{}, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedPayload)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return MessageEvent{}, fmt.Errorf("%w: expected JSON object, got %s", ErrMalformedPayload, jsonKind(raw))
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		s, err := scalarString(v)
		if err != nil {
			return MessageEvent{}, fmt.Errorf("%w: field %q: %v", ErrMalformedPayload, k, err)
		}
		fields[k] = s
	}
	return MessageEvent{fields: fields}, nil
}

// MarshalJSON encodes the event as a flat JSON object.
func (e MessageEvent) MarshalJSON() ([]byte, error) {
	if e.fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.fields)
}

// UnmarshalJSON decodes a flat JSON object with the same rules as FromJSON.
func (e *MessageEvent) UnmarshalJSON(data []byte) error {
	ev, err := FromJSON(data)
	if err != nil {
		return err
	}
	*e = ev
	return nil
}

func scalarString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		if x {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("nested %s not supported", jsonKind(v))
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// validUTF8 replaces each invalid byte with U+FFFD, the way encoding/json does
// when it marshals a string.
func validUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else {
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	return b.String()
}
