package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one named card field.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Fields is an ordered field mapping. The order is the field order the
// remote note model expects.
type Fields []Field

// Get returns the value stored under name.
func (f Fields) Get(name string) (string, bool) {
	for _, fl := range f {
		if fl.Name == name {
			return fl.Value, true
		}
	}
	return "", false
}

// Set replaces the value under name, appending the field when missing.
func (f Fields) Set(name, value string) Fields {
	for i := range f {
		if f[i].Name == name {
			f[i].Value = value
			return f
		}
	}
	return append(f, Field{Name: name, Value: value})
}

// Names returns the field names in order.
func (f Fields) Names() []string {
	out := make([]string, len(f))
	for i, fl := range f {
		out[i] = fl.Name
	}
	return out
}

// Map returns the fields as an unordered map.
func (f Fields) Map() map[string]string {
	out := make(map[string]string, len(f))
	for _, fl := range f {
		out[fl.Name] = fl.Value
	}
	return out
}

// MarshalJSON encodes the fields as a JSON object, keeping insertion order.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fl := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(fl.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fl.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into fields, keeping key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("models: fields: want object, got %v", tok)
	}
	out := Fields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("models: fields: %s: %w", name, err)
		}
		out = append(out, Field{Name: name, Value: value})
	}
	*f = out
	return nil
}

func equalFields(a, b Fields) bool {
	if len(a) != len(b) {
		return false
	}
	m := a.Map()
	for _, fl := range b {
		if v, ok := m[fl.Name]; !ok || v != fl.Value {
			return false
		}
	}
	return true
}
