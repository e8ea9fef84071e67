// Package event holds the raw automation event as delivered by OBS and the
// canonical record forwarded to the remote collection service.
package event

import (
	"bytes"
	"encoding/json"
)

// Raw is one event as emitted by the automation socket. Data is the
// undecoded eventData object and may be empty or malformed.
type Raw struct {
	Kind   string
	Intent int
	Data   json.RawMessage
}

// Field is a single canonical key/value pair. Value is a JSON scalar, nil,
// or a []any of scalars.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered set of canonical fields. It encodes as a JSON object
// whose keys keep their insertion order.
type Fields []Field

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(field.Value)
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

// Canonical is the normalized, forwarder-ready form of an automation event.
// It is not modified after Translate returns it.
type Canonical struct {
	Name   string `json:"name"`
	Fields Fields `json:"fields"`
}

// Encode returns the compact JSON form sent to the collection endpoint.
func (c Canonical) Encode() ([]byte, error) {
	if c.Fields == nil {
		c.Fields = Fields{}
	}
	return json.Marshal(c)
}
