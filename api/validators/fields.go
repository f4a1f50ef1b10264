package validators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexID accepts an identifier sent either as a JSON number or as a string of
// digits, the way form-encoded clients post it.
type FlexID uint64

func (f *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*f = 0
			return nil
		}
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("id must be a positive integer")
	}
	*f = FlexID(v)
	return nil
}

// IDList carries a comma-separated list of ids. It accepts either a CSV string
// or a JSON array of numbers or strings; filtering of invalid tokens is left to
// the service.
type IDList string

func (l *IDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = IDList(s)
		return nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("items must be a csv string or a list of ids")
	}
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		var s string
		if err := json.Unmarshal(p, &s); err == nil {
			tokens = append(tokens, s)
			continue
		}
		tokens = append(tokens, string(bytes.TrimSpace(p)))
	}
	*l = IDList(strings.Join(tokens, ","))
	return nil
}

// EmbeddedJSON holds a JSON value that clients may also send encoded inside a
// string, e.g. {"items": "[{\"id\": 1}]"}.
type EmbeddedJSON json.RawMessage

func (e *EmbeddedJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	*e = append((*e)[:0], data...)
	return nil
}

// Decode unmarshals the held value into dest.
func (e EmbeddedJSON) Decode(dest any) error {
	if len(e) == 0 {
		return fmt.Errorf("value is empty")
	}
	return json.Unmarshal(e, dest)
}
