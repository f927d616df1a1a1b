package settingtype

import (
	"encoding/json"
	"math"
)

// Validate reports whether value satisfies the type. It is total: any value
// shape, including ones unrelated to the type, yields false rather than an
// error. Values are expected in decoded-JSON form (float64 numbers, string,
// bool, nil, []any, map[string]any); Go integer types are accepted as
// numbers for convenience.
func (t Type) Validate(value any) bool {
	switch t.kind {
	case KindInt:
		f, ok := asNumber(value)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case KindFloat:
		_, ok := asNumber(value)
		return ok
	case KindStr:
		_, ok := value.(string)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindEnum:
		key, _, ok := optionKey(value)
		if !ok {
			return false
		}
		_, present := t.options[key]
		return present
	case KindFlags:
		items, ok := value.([]any)
		if !ok {
			return false
		}
		seen := make(map[string]struct{}, len(items))
		for _, item := range items {
			key, _, ok := optionKey(item)
			if !ok {
				return false
			}
			if _, present := t.options[key]; !present {
				return false
			}
			if _, dup := seen[key]; dup {
				return false
			}
			seen[key] = struct{}{}
		}
		return true
	case KindSequence:
		items, ok := value.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if !t.elem.Validate(item) {
				return false
			}
		}
		return true
	case KindMapping:
		entries, ok := value.(map[string]any)
		if !ok {
			return false
		}
		for _, v := range entries {
			if !t.elem.Validate(v) {
				return false
			}
		}
		return true
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}
