package serial

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/hpungsan/lichen/internal/errors"
)

// Value coercion helpers for constructors and SetField implementations.
// Decoded values arrive in whatever shape the wire format produced
// (json.Number, uint64 from CBOR, int from YAML), so every numeric
// accessor accepts all of them. Failures are MALFORMED_ENVELOPE errors
// naming field.

// ToString returns v as a string.
func ToString(field string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.NewMalformedEnvelope(field, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

// ToOptionalString returns v as a string, treating nil as "".
func ToOptionalString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	return ToString(field, v)
}

// ToBool returns v as a bool.
func ToBool(field string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, errors.NewMalformedEnvelope(field, fmt.Sprintf("expected bool, got %T", v))
	}
	return b, nil
}

// ToInt returns v as an int. Floats are accepted only when integral.
func ToInt(field string, v any) (int, error) {
	bad := errors.NewMalformedEnvelope(field, fmt.Sprintf("expected integer, got %T", v))
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		if x > math.MaxInt {
			return 0, bad
		}
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		if x > math.MaxInt {
			return 0, bad
		}
		return int(x), nil
	case float32:
		return floatToInt(float64(x), bad)
	case float64:
		return floatToInt(x, bad)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), nil
		}
		if f, err := x.Float64(); err == nil {
			return floatToInt(f, bad)
		}
	}
	return 0, bad
}

func floatToInt(f float64, bad error) (int, error) {
	if f != math.Trunc(f) || f > math.MaxInt || f < math.MinInt {
		return 0, bad
	}
	return int(f), nil
}

// ToFloat returns v as a float64.
func ToFloat(field string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f, nil
		}
	default:
		if i, err := ToInt(field, v); err == nil {
			return float64(i), nil
		}
	}
	return 0, errors.NewMalformedEnvelope(field, fmt.Sprintf("expected number, got %T", v))
}

// ToMap returns v as a string-keyed map.
func ToMap(field string, v any) (map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			ks, ok := k.(string)
			if !ok {
				return nil, errors.NewMalformedEnvelope(field, fmt.Sprintf("map key %v is not a string", k))
			}
			out[ks] = val
		}
		return out, nil
	}
	return nil, errors.NewMalformedEnvelope(field, fmt.Sprintf("expected map, got %T", v))
}

// ToSlice returns v as a []any.
func ToSlice(field string, v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	}
	return nil, errors.NewMalformedEnvelope(field, fmt.Sprintf("expected list, got %T", v))
}

// ToStringSlice returns v as a []string.
func ToStringSlice(field string, v any) ([]string, error) {
	if ss, ok := v.([]string); ok {
		return slices.Clone(ss), nil
	}
	items, err := ToSlice(field, v)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.NewMalformedEnvelope(fmt.Sprintf("%s[%d]", field, i), fmt.Sprintf("expected string, got %T", item))
		}
		out[i] = s
	}
	return out, nil
}

// CheckKeys rejects any key of m that is not in allowed.
func CheckKeys(m map[string]any, allowed ...string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Contains(allowed, k) {
			return errors.NewMalformedEnvelope(k, "undeclared constructor argument")
		}
	}
	return nil
}

// UndeclaredField is the error SetField returns for a name the type does not declare.
func UndeclaredField(name string) error {
	return errors.NewMalformedEnvelope(name, "undeclared field")
}
