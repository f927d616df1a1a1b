package settingtype

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Kind discriminates the closed set of type shapes.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindStr
	KindBool
	KindEnum
	KindFlags
	KindSequence
	KindMapping
)

// Type is a setting type descriptor. The zero value is not a valid type;
// construct types with Parse or the constructor functions.
type Type struct {
	kind Kind
	// options holds the canonical option set for Enum and Flags kinds.
	// Numbers are normalized to float64 so 1 and 1.0 collapse to one option.
	options map[string]any
	// elem is the element type for Sequence and Mapping kinds.
	elem *Type
}

// Primitive type singletons.
var (
	Int   = Type{kind: KindInt}
	Float = Type{kind: KindFloat}
	Str   = Type{kind: KindStr}
	Bool  = Type{kind: KindBool}
)

// NewEnum builds an Enum type from the given options. Options must be JSON
// primitives (string, bool, number or nil); anything else fails with
// ErrInvalidType.
func NewEnum(options ...any) (Type, error) {
	set, err := optionSet(options)
	if err != nil {
		return Type{}, err
	}
	return Type{kind: KindEnum, options: set}, nil
}

// NewFlags builds a Flags type from the given options, under the same option
// constraints as NewEnum.
func NewFlags(options ...any) (Type, error) {
	set, err := optionSet(options)
	if err != nil {
		return Type{}, err
	}
	return Type{kind: KindFlags, options: set}, nil
}

// NewSequence builds a Sequence type over elem.
func NewSequence(elem Type) Type {
	e := elem
	return Type{kind: KindSequence, elem: &e}
}

// NewMapping builds a Mapping type over elem.
func NewMapping(elem Type) Type {
	e := elem
	return Type{kind: KindMapping, elem: &e}
}

// Kind returns the type's discriminant.
func (t Type) Kind() Kind { return t.kind }

// Elem returns the element type of a Sequence or Mapping, and false for any
// other kind.
func (t Type) Elem() (Type, bool) {
	if t.elem == nil {
		return Type{}, false
	}
	return *t.elem, true
}

// Options returns the option values of an Enum or Flags type in canonical
// (sorted) order. It returns nil for other kinds.
func (t Type) Options() []any {
	if t.options == nil {
		return nil
	}
	keys := make([]string, 0, len(t.options))
	for k := range t.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = t.options[k]
	}
	return out
}

// Equal reports whether two types are structurally identical.
func (t Type) Equal(other Type) bool {
	if t.kind != other.kind {
		return false
	}
	switch t.kind {
	case KindEnum, KindFlags:
		return sameOptionSet(t.options, other.options)
	case KindSequence, KindMapping:
		return t.elem.Equal(*other.elem)
	default:
		return true
	}
}

// String renders the canonical text form. Option lists are sorted by their
// canonical key, so the output re-parses to an equal type but need not match
// the original input character for character.
func (t Type) String() string {
	switch t.kind {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindStr:
		return "str"
	case KindBool:
		return "bool"
	case KindEnum:
		return "Enum[" + t.formatOptions() + "]"
	case KindFlags:
		return "Flags[" + t.formatOptions() + "]"
	case KindSequence:
		return "Sequence<" + t.elem.String() + ">"
	case KindMapping:
		return "Mapping<" + t.elem.String() + ">"
	}
	return "<invalid>"
}

func (t Type) formatOptions() string {
	keys := make([]string, 0, len(t.options))
	for k := range t.options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		b, err := json.Marshal(t.options[k])
		if err != nil {
			// options are JSON primitives by construction
			b = []byte("null")
		}
		parts[i] = string(b)
	}
	return strings.Join(parts, ",")
}

// optionSet canonicalizes a slice of option values into a keyed set.
func optionSet(options []any) (map[string]any, error) {
	if len(options) == 0 {
		return nil, errInvalid("option list must not be empty")
	}
	set := make(map[string]any, len(options))
	for _, opt := range options {
		key, canon, ok := optionKey(opt)
		if !ok {
			return nil, errInvalid("option %v is not a JSON primitive", opt)
		}
		set[key] = canon
	}
	return set, nil
}

// optionKey maps a JSON primitive to a canonical set key and its normalized
// representation. Numeric values unify across int and float spellings.
func optionKey(v any) (key string, canon any, ok bool) {
	switch x := v.(type) {
	case nil:
		return "z", nil, true
	case bool:
		return "b:" + strconv.FormatBool(x), x, true
	case string:
		return "s:" + x, x, true
	case float64:
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64), x, true
	case float32:
		return optionKey(float64(x))
	case int:
		return optionKey(float64(x))
	case int32:
		return optionKey(float64(x))
	case int64:
		return optionKey(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return "", nil, false
		}
		return optionKey(f)
	}
	return "", nil, false
}

func sameOptionSet(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// subOptionSet reports whether a is a strict subset of b.
func subOptionSet(a, b map[string]any) bool {
	if len(a) >= len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
