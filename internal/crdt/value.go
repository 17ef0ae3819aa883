package crdt

import (
	"fmt"
	"reflect"
)

// Value is a plain field value: string, bool, int64, float64, nil,
// []Value, or map[string]Value. Values are deep-copied on the way in and
// out of the document, so callers never alias internal state.
type Value = any

// normalizeValue coerces caller-supplied data into the canonical Value
// representation. Integer types collapse to int64, float32 widens to
// float64, and containers are normalized recursively.
//
// Panics on unsupported types - passing a channel or struct into a record
// field is a programming error, not a runtime condition.
func normalizeValue(v any) Value {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]Value, len(val))
		for i, elem := range val {
			out[i] = normalizeValue(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]Value, len(val))
		for k, elem := range val {
			out[k] = normalizeValue(elem)
		}
		return out
	default:
		panic(fmt.Sprintf("crdt: unsupported field value type %T", v))
	}
}

// copyValue returns a deep copy of a normalized Value.
func copyValue(v Value) Value {
	switch val := v.(type) {
	case []Value:
		out := make([]Value, len(val))
		for i, elem := range val {
			out[i] = copyValue(elem)
		}
		return out
	case map[string]Value:
		out := make(map[string]Value, len(val))
		for k, elem := range val {
			out[k] = copyValue(elem)
		}
		return out
	default:
		return val
	}
}

// copyRecord deep-copies a record's fields.
func copyRecord(rec map[string]Value) map[string]Value {
	out := make(map[string]Value, len(rec))
	for k, v := range rec {
		out[k] = copyValue(v)
	}
	return out
}

// valueEqual reports deep equality of two normalized values.
func valueEqual(a, b Value) bool {
	return reflect.DeepEqual(a, b)
}
