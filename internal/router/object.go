package router

import (
	"bytes"
	"encoding/json"
	"errors"
)

var ErrNotJSON = errors.New("not a JSON object")

// Object is one decoded JSON object. Member values stay as raw bytes so
// nested values are copied verbatim.
type Object map[string]json.RawMessage

// ParseObject decodes b; anything but a JSON object -> ErrNotJSON.
func ParseObject(b []byte) (Object, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, ErrNotJSON
	}
	var o Object
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, ErrNotJSON
	}
	return o, nil
}

func NewObject() Object { return Object{} }

// String member name; false if absent or not a string.
func (o Object) String(name string) (string, bool) {
	raw, ok := o[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Raw member name (copy); false if absent.
func (o Object) Raw(name string) (json.RawMessage, bool) {
	raw, ok := o[name]
	if !ok {
		return nil, false
	}
	return append(json.RawMessage(nil), raw...), true
}

func (o Object) SetString(name, v string) Object {
	b, _ := json.Marshal(v)
	o[name] = b
	return o
}

// SetRaw stores raw (must be valid JSON) under name.
func (o Object) SetRaw(name string, raw json.RawMessage) Object {
	o[name] = append(json.RawMessage(nil), raw...)
	return o
}

// Set marshals v under name.
func (o Object) Set(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	o[name] = b
	return nil
}

// Marshal compact JSON, keys sorted.
func (o Object) Marshal() ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage(o))
}

// compactLine renders JSON text as one line.
func compactLine(b []byte) (string, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return "", err
	}
	return buf.String(), nil
}
