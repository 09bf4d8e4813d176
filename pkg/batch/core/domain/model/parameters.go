package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// JobParameters is the immutable parameter set of a job launch. Keys listed in
// NonIdentifying are carried to the execution but take no part in instance identity.
//
// Mutators return a modified copy; the receiver is never changed.
type JobParameters struct {
	Params         map[string]interface{}
	NonIdentifying map[string]bool
}

// NewJobParameters returns an empty JobParameters.
func NewJobParameters() JobParameters {
	return JobParameters{
		Params:         make(map[string]interface{}),
		NonIdentifying: make(map[string]bool),
	}
}

// NewJobParametersFrom returns identifying JobParameters holding a copy of params.
func NewJobParametersFrom(params map[string]interface{}) JobParameters {
	jp := NewJobParameters()
	for k, v := range params {
		jp.Params[k] = v
	}
	return jp
}

// Copy returns a deep copy of the parameter maps.
func (jp JobParameters) Copy() JobParameters {
	c := NewJobParameters()
	for k, v := range jp.Params {
		c.Params[k] = v
	}
	for k, v := range jp.NonIdentifying {
		if v {
			c.NonIdentifying[k] = true
		}
	}
	return c
}

// With returns a copy of jp with key set to value as an identifying parameter.
func (jp JobParameters) With(key string, value interface{}) JobParameters {
	c := jp.Copy()
	c.Params[key] = value
	delete(c.NonIdentifying, key)
	return c
}

// WithNonIdentifying returns a copy of jp with key set to value as a non-identifying parameter.
func (jp JobParameters) WithNonIdentifying(key string, value interface{}) JobParameters {
	c := jp.Copy()
	c.Params[key] = value
	c.NonIdentifying[key] = true
	return c
}

// Without returns a copy of jp without key.
func (jp JobParameters) Without(key string) JobParameters {
	c := jp.Copy()
	delete(c.Params, key)
	delete(c.NonIdentifying, key)
	return c
}

// Merge returns a copy of jp overlaid with other. Identifying flags follow other for the keys it defines.
func (jp JobParameters) Merge(other JobParameters) JobParameters {
	c := jp.Copy()
	for k, v := range other.Params {
		c.Params[k] = v
		if other.NonIdentifying[k] {
			c.NonIdentifying[k] = true
		} else {
			delete(c.NonIdentifying, k)
		}
	}
	return c
}

// IsIdentifying reports whether key takes part in instance identity.
func (jp JobParameters) IsIdentifying(key string) bool {
	return !jp.NonIdentifying[key]
}

// IdentifyingParams returns only the identifying parameters.
func (jp JobParameters) IdentifyingParams() JobParameters {
	c := NewJobParameters()
	for k, v := range jp.Params {
		if jp.IsIdentifying(k) {
			c.Params[k] = v
		}
	}
	return c
}

// NonIdentifyingKeys returns the sorted non-identifying keys.
func (jp JobParameters) NonIdentifyingKeys() []string {
	keys := make([]string, 0, len(jp.NonIdentifying))
	for k, v := range jp.NonIdentifying {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Keys returns all parameter keys, sorted.
func (jp JobParameters) Keys() []string {
	keys := make([]string, 0, len(jp.Params))
	for k := range jp.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of parameters.
func (jp JobParameters) Len() int {
	return len(jp.Params)
}

// Get returns the raw value of key.
func (jp JobParameters) Get(key string) (interface{}, bool) {
	if jp.Params == nil {
		return nil, false
	}
	v, ok := jp.Params[key]
	return v, ok
}

// GetString returns key as a string. Non-string scalars are formatted.
func (jp JobParameters) GetString(key string) (string, bool) {
	v, ok := jp.Get(key)
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	case json.Number:
		return s.String(), true
	default:
		return fmt.Sprint(v), true
	}
}

// GetInt64 returns key as an int64. Integral floats, json.Number and numeric strings are accepted.
func (jp JobParameters) GetInt64(key string) (int64, bool) {
	v, ok := jp.Get(key)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// GetBool returns key as a bool.
func (jp JobParameters) GetBool(key string) (bool, bool) {
	v, ok := jp.Get(key)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}

// GetFloat64 returns key as a float64.
func (jp JobParameters) GetFloat64(key string) (float64, bool) {
	v, ok := jp.Get(key)
	if !ok || !isNumeric(v) {
		return 0, false
	}
	return toFloat64(v), true
}

// GetTime returns key as a time. RFC 3339 strings are parsed.
func (jp JobParameters) GetTime(key string) (time.Time, bool) {
	v, ok := jp.Get(key)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

// Equal reports whether both sets hold the same values and the same identifying flags.
// Numeric values compare by value regardless of their Go type.
func (jp JobParameters) Equal(other JobParameters) bool {
	if len(jp.Params) != len(other.Params) {
		return false
	}
	if !reflect.DeepEqual(jp.NonIdentifyingKeys(), other.NonIdentifyingKeys()) {
		return false
	}
	return jp.Contains(other)
}

// Contains reports whether every parameter of partial is present in jp with an equal value.
func (jp JobParameters) Contains(partial JobParameters) bool {
	for k, v := range partial.Params {
		mine, ok := jp.Params[k]
		if !ok || !deepEqualWithNumericTolerance(mine, v) {
			return false
		}
	}
	return true
}

// Hash returns the hex sha256 of the canonical JSON of the identifying parameters.
// encoding/json sorts map keys, which makes the document independent of insertion order.
func (jp JobParameters) Hash() (string, error) {
	identifying := jp.IdentifyingParams().Params
	normalized := make(map[string]interface{}, len(identifying))
	for k, v := range identifying {
		normalized[k] = normalizeForHash(v)
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return "", exception.NewBatchError("job_parameters", "failed to marshal JobParameters for hash calculation", err, false, false)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// String renders the parameters as {k=v, ...} in key order with sensitive keys masked.
// Non-identifying keys carry a leading '-'.
func (jp JobParameters) String() string {
	masked := serialization.GetMaskedJobParametersMap(jp.Params)
	parts := make([]string, 0, len(masked))
	for _, k := range jp.Keys() {
		name := k
		if !jp.IsIdentifying(k) {
			name = "-" + k
		}
		parts = append(parts, fmt.Sprintf("%s=%v", name, masked[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Value implements driver.Valuer, storing Params as a JSON document.
func (jp JobParameters) Value() (driver.Value, error) {
	data, err := serialization.MarshalJobParameters(jp.Params)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner. Scanned parameters are all identifying; callers restore the flags.
func (jp *JobParameters) Scan(value interface{}) error {
	b, err := scanBytes(value, "JobParameters")
	if err != nil {
		return err
	}
	if jp.NonIdentifying == nil {
		jp.NonIdentifying = make(map[string]bool)
	}
	return serialization.UnmarshalJobParameters(b, &jp.Params)
}

func scanBytes(value interface{}, typeName string) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
}

// normalizeForHash maps integral numbers to int64 so that 3, int64(3), 3.0 and json.Number("3") hash alike.
func normalizeForHash(v interface{}) interface{} {
	if !isNumeric(v) {
		return v
	}
	if i, ok := toInt64(v); ok {
		return i
	}
	return toFloat64(v)
}

func deepEqualWithNumericTolerance(a, b interface{}) bool {
	if isNumeric(a) && isNumeric(b) {
		return toFloat64(a) == toFloat64(b)
	}
	return reflect.DeepEqual(a, b)
}

func isNumeric(v interface{}) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	case json.Number:
		_, err := n.Float64()
		return err == nil
	default:
		return false
	}
}

func toFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return floatToInt64(float64(n))
	case float64:
		return floatToInt64(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
