package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is the right-hand side of a field condition. It is one of Text, List
// or Range.
type Value interface {
	isValue()
}

// Text is a scalar value.
type Text string

// List is an ordered list of scalars, compiled as a disjunction.
type List []string

// Range is an interval; an empty bound is open.
type Range struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

func (Text) isValue()  {}
func (List) isValue()  {}
func (Range) isValue() {}

// Condition binds a Value to a field name.
type Condition struct {
	Field string
	Value Value
}

// Conditions is an ordered field → value mapping. Its JSON form is an object
// whose keys keep their document order.
type Conditions []Condition

// Get returns the value bound to field.
func (c Conditions) Get(field string) (Value, bool) {
	for _, cond := range c {
		if cond.Field == field {
			return cond.Value, true
		}
	}
	return nil, false
}

// With returns a copy of c with field set to v. An existing binding is
// replaced in place; a new one is appended.
func (c Conditions) With(field string, v Value) Conditions {
	out := make(Conditions, len(c), len(c)+1)
	copy(out, c)
	for i := range out {
		if out[i].Field == field {
			out[i].Value = v
			return out
		}
	}
	return append(out, Condition{Field: field, Value: v})
}

// UnmarshalJSON decodes an object while preserving key order.
func (c *Conditions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	out := Conditions{}
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		v, err := DecodeValue(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		if v != nil {
			out = append(out, Condition{Field: key, Value: v})
		}
		return nil
	})
	if err != nil {
		return err
	}
	*c = out
	return nil
}

// MarshalJSON encodes the conditions as an object in their own order.
func (c Conditions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cond := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(cond.Field)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cond.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeValue decodes a JSON scalar, array or {from, to} object into a Value.
// Numbers and booleans are kept as their literal text. A JSON null yields a
// nil Value.
func DecodeValue(raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	switch raw[0] {
	case 'n':
		return nil, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		list := make(List, 0, len(items))
		for _, item := range items {
			s, err := scalarText(item)
			if err != nil {
				return nil, err
			}
			list = append(list, s)
		}
		return list, nil
	case '{':
		var bounds map[string]json.RawMessage
		if err := json.Unmarshal(raw, &bounds); err != nil {
			return nil, err
		}
		var r Range
		for key, b := range bounds {
			s, err := scalarText(b)
			if err != nil {
				return nil, err
			}
			switch key {
			case "from":
				r.From = s
			case "to":
				r.To = s
			default:
				return nil, fmt.Errorf("unexpected range key %q", key)
			}
		}
		return r, nil
	default:
		s, err := scalarText(raw)
		if err != nil {
			return nil, err
		}
		return Text(s), nil
	}
}

func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case 'n':
		return "", nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", err
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case '[', '{':
		return "", fmt.Errorf("expected scalar, got %s", raw)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	}
}

// decodeOrderedObject walks the top-level keys of a JSON object in order.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
