package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ID represents a JSON-RPC ID which must be either a string or number.
// Numbers are held as json.Number so they are echoed back exactly as
// received. The zero ID stands for an absent or null id, which marks a
// notification.
type ID struct {
	value interface{}
}

// NewID creates a JSON-RPC ID from a string or number. A nil value yields
// the zero ID.
func NewID(id interface{}) (ID, error) {
	switch v := id.(type) {
	case ID:
		return v, nil
	case string:
		return ID{value: v}, nil
	case json.Number:
		if _, err := strconv.ParseFloat(string(v), 64); err != nil {
			return ID{}, fmt.Errorf("invalid numeric id %q", v)
		}
		return ID{value: v}, nil
	case int:
		return ID{value: json.Number(strconv.Itoa(v))}, nil
	case int32:
		return ID{value: json.Number(strconv.FormatInt(int64(v), 10))}, nil
	case int64:
		return ID{value: json.Number(strconv.FormatInt(v, 10))}, nil
	case float32:
		return newFloatID(float64(v))
	case float64:
		return newFloatID(v)
	case nil:
		return ID{}, nil
	default:
		return ID{}, fmt.Errorf("id must be string or number, got %T", id)
	}
}

func newFloatID(v float64) (ID, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ID{}, fmt.Errorf("id must be a finite number, got %v", v)
	}
	return ID{value: json.Number(strconv.FormatFloat(v, 'g', -1, 64))}, nil
}

// MustID is like NewID but panics on invalid input. Intended for tests and
// literals.
func MustID(id interface{}) ID {
	v, err := NewID(id)
	if err != nil {
		panic(err)
	}
	return v
}

// Value returns the id as a string, an int for integral numbers that fit,
// or a json.Number otherwise.
func (id ID) Value() interface{} {
	if n, ok := id.value.(json.Number); ok {
		if i, err := strconv.ParseInt(string(n), 10, 0); err == nil {
			return int(i)
		}
		return n
	}
	return id.value
}

func (id ID) IsNil() bool {
	return id.value == nil
}

// Equal compares two IDs for equality
func (id ID) Equal(other interface{}) bool {
	o, err := NewID(other)
	if err != nil {
		return false
	}
	return id.value == o.value
}

var _ fmt.GoStringer = ID{}

// GoString implements fmt.GoStringer
func (id ID) GoString() string {
	switch v := id.value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case json.Number:
		return string(v)
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// String renders the id for logs.
func (id ID) String() string {
	if id.value == nil {
		return ""
	}
	return fmt.Sprint(id.value)
}

var _ json.Marshaler = ID{}

func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

var _ json.Unmarshaler = &ID{}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		id.value = v
		return nil
	case json.Number:
		id.value = v
		return nil
	case nil:
		id.value = nil
		return nil
	default:
		return fmt.Errorf("id must be string or number, got %T", raw)
	}
}
