package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Record is a JSON object decoded with its key order preserved. Values are
// kept as display strings: JSON strings as-is, null as "", anything else
// as its JSON text.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a Record from alternating key, value arguments.
func NewRecord(kv ...string) Record {
	var r Record
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i], kv[i+1])
	}
	return r
}

// Keys returns the keys in first-seen order. The slice must not be modified.
func (r Record) Keys() []string { return r.keys }

// Len reports the number of keys.
func (r Record) Len() int { return len(r.keys) }

// Get returns the value for key.
func (r Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value for key or "".
func (r Record) Value(key string) string { return r.values[key] }

// Set stores value under key. Re-setting a key keeps its original position.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = Record{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("record: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("record: expected key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("record: value for %q: %w", key, err)
		}
		r.Set(key, displayValue(raw))
	}
	_, err = dec.Token()
	return err
}

// MarshalJSON implements json.Marshaler, writing keys in order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(r.values[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func displayValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return ""
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(trimmed))
}
