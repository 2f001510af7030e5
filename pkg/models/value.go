package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind is the type tag of a field value
type ValueKind string

const (
	// ValueKindText is a free-form string value
	ValueKindText ValueKind = "text"
	// ValueKindFlag is a boolean value
	ValueKindFlag ValueKind = "flag"
	// ValueKindNumber is a numeric value
	ValueKindNumber ValueKind = "number"
)

// Value is a typed field value. The zero Value is empty.
// It serializes as a bare JSON scalar (or null when empty).
type Value struct {
	Kind   ValueKind
	Text   string
	Flag   bool
	Number float64
}

// Text builds a text value. Surrounding whitespace is trimmed and a blank string is empty.
func Text(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	return Value{Kind: ValueKindText, Text: s}
}

// Flag builds a boolean value
func Flag(b bool) Value {
	return Value{Kind: ValueKindFlag, Flag: b}
}

// Number builds a numeric value
func Number(n float64) Value {
	return Value{Kind: ValueKindNumber, Number: n}
}

// IsEmpty reports whether the value carries nothing
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueKindText:
		return strings.TrimSpace(v.Text) == ""
	case ValueKindFlag, ValueKindNumber:
		return false
	default:
		return true
	}
}

// Equal compares two values. All empty values are equal to each other.
func (v Value) Equal(other Value) bool {
	if v.IsEmpty() || other.IsEmpty() {
		return v.IsEmpty() && other.IsEmpty()
	}
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueKindText:
		return v.Text == other.Text
	case ValueKindFlag:
		return v.Flag == other.Flag
	case ValueKindNumber:
		return v.Number == other.Number
	}
	return false
}

func (v Value) String() string {
	if v.IsEmpty() {
		return ""
	}
	switch v.Kind {
	case ValueKindFlag:
		return strconv.FormatBool(v.Flag)
	case ValueKindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	default:
		return v.Text
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsEmpty() {
		return []byte("null"), nil
	}
	switch v.Kind {
	case ValueKindFlag:
		return json.Marshal(v.Flag)
	case ValueKindNumber:
		return json.Marshal(v.Number)
	default:
		return json.Marshal(v.Text)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Value{}
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ValueOf(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ValueOf converts a decoded scalar into a Value, inferring the kind
func ValueOf(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case Value:
		return t, nil
	case string:
		return Text(t), nil
	case bool:
		return Flag(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Number(n), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Coerce converts v to the given kind. Text is parsed into flags and numbers so
// loosely typed sources (CSV, query strings) can feed typed fields.
func (v Value) Coerce(kind ValueKind) (Value, error) {
	if v.IsEmpty() || v.Kind == kind {
		return v, nil
	}
	switch kind {
	case ValueKindText:
		return Text(v.String()), nil
	case ValueKindFlag:
		if v.Kind == ValueKindText {
			b, err := strconv.ParseBool(v.Text)
			if err != nil {
				return Value{}, fmt.Errorf("%q is not a boolean", v.Text)
			}
			return Flag(b), nil
		}
	case ValueKindNumber:
		if v.Kind == ValueKindText {
			n, err := strconv.ParseFloat(v.Text, 64)
			if err != nil {
				return Value{}, fmt.Errorf("%q is not a number", v.Text)
			}
			return Number(n), nil
		}
	}
	return Value{}, fmt.Errorf("cannot use %s value as %s", v.Kind, kind)
}
