package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Response is the raw reply of the voting service.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return errors.New("backend: empty response body")
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}

// Envelope decodes the standard {success, message, data, errors} wrapper.
// Bodies that are not JSON objects yield a zero Envelope and an error.
func (r *Response) Envelope() (Envelope, error) {
	var env Envelope
	err := r.JSON(&env)
	return env, err
}

// Object decodes either a bare object or the data member of an envelope.
// The service is inconsistent about wrapping /user and voter status.
func (r *Response) Object(v any) error {
	var probe map[string]json.RawMessage
	if err := r.JSON(&probe); err != nil {
		return err
	}
	if data, ok := probe["data"]; ok {
		if _, wrapped := probe["success"]; wrapped {
			trimmed := bytes.TrimSpace(data)
			if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
				return errors.New("backend: envelope has no data")
			}
			if err := json.Unmarshal(trimmed, v); err != nil {
				return fmt.Errorf("backend: decode data: %w", err)
			}
			return nil
		}
	}
	return r.JSON(v)
}

// Envelope is the wrapper used by the auth, voter and candidate endpoints.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  FieldErrors     `json:"errors,omitempty"`
}

// FieldError holds validation messages for one input field.
type FieldError struct {
	Field    string
	Messages []string
}

// FieldErrors preserves the order fields appear in the response, so joined
// messages read in the same order the server produced them.
type FieldErrors []FieldError

func (f *FieldErrors) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("backend: errors must be an object")
	}
	var out FieldErrors
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		field, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		msgs, err := decodeMessages(raw)
		if err != nil {
			return fmt.Errorf("backend: errors.%s: %w", field, err)
		}
		out = append(out, FieldError{Field: field, Messages: msgs})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

func decodeMessages(raw json.RawMessage) ([]string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, errors.New("expected string or list of strings")
	}
	return []string{single}, nil
}

// Join flattens all messages, field order first, separated by ", ".
func (f FieldErrors) Join() string {
	var parts []string
	for _, fe := range f {
		for _, msg := range fe.Messages {
			if msg = strings.TrimSpace(msg); msg != "" {
				parts = append(parts, msg)
			}
		}
	}
	return strings.Join(parts, ", ")
}
