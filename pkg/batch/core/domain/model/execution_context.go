package model

import (
	"database/sql/driver"
	"encoding/json"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// ExecutionContext is the key-value state of a job or step execution. For steps it is
// the checkpoint: readers and the chunk processor store their restart position here.
type ExecutionContext map[string]interface{}

// NewExecutionContext creates an empty ExecutionContext.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put sets a value.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns a value.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString returns key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	v, ok := ec[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetInt returns key as an int. Values read back from JSON are accepted.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	i, ok := ec.GetInt64(key)
	return int(i), ok
}

// GetInt64 returns key as an int64.
func (ec ExecutionContext) GetInt64(key string) (int64, bool) {
	v, ok := ec[key]
	if !ok {
		return 0, false
	}
	if _, isString := v.(string); isString {
		return 0, false
	}
	return toInt64(v)
}

// GetBool returns key as a bool.
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	v, ok := ec[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// GetFloat64 returns key as a float64.
func (ec ExecutionContext) GetFloat64(key string) (float64, bool) {
	v, ok := ec[key]
	if !ok || !isNumeric(v) {
		return 0, false
	}
	return toFloat64(v), true
}

// Remove deletes a key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// Keys returns the keys in sorted order.
func (ec ExecutionContext) Keys() []string {
	keys := make([]string, 0, len(ec))
	for k := range ec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a copy of the context. Nested maps and slices are copied as well so
// that a saved checkpoint can never be changed through the live context.
func (ec ExecutionContext) Copy() ExecutionContext {
	c := make(ExecutionContext, len(ec))
	for k, v := range ec {
		c[k] = deepCopyValue(v)
	}
	return c
}

// Merge copies every entry of other into ec.
func (ec ExecutionContext) Merge(other ExecutionContext) {
	for k, v := range other {
		ec[k] = deepCopyValue(v)
	}
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = deepCopyValue(inner)
		}
		return m
	case ExecutionContext:
		return t.Copy()
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = deepCopyValue(inner)
		}
		return s
	default:
		return v
	}
}

// Value implements driver.Valuer.
func (ec ExecutionContext) Value() (driver.Value, error) {
	data, err := serialization.MarshalExecutionContext(ec)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	b, err := scanBytes(value, "ExecutionContext")
	if err != nil {
		return err
	}
	m := map[string]interface{}(*ec)
	if err := serialization.UnmarshalExecutionContext(b, &m); err != nil {
		return err
	}
	*ec = m
	return nil
}

// FailureList holds the failures of an execution, formatted "<kind>: <message>".
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	data, err := serialization.MarshalFailures(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	b, err := scanBytes(value, "FailureList")
	if err != nil {
		return err
	}
	var msgs []string
	if err := serialization.UnmarshalFailures(b, &msgs); err != nil {
		return err
	}
	*fl = msgs
	return nil
}

// MarshalJSON keeps an empty list as [] rather than null.
func (fl FailureList) MarshalJSON() ([]byte, error) {
	if fl == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(fl))
}
