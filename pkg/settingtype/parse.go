package settingtype

import (
	"encoding/json"
	"strings"
)

// Parse converts the text form of a type into its Type value. The input must
// match the grammar documented on the package; surrounding whitespace is
// ignored. Parse(t.String()) always yields a type equal to t.
func Parse(text string) (Type, error) {
	s := strings.TrimSpace(text)
	switch s {
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "str":
		return Str, nil
	case "bool":
		return Bool, nil
	}

	switch {
	case strings.HasPrefix(s, "Enum[") && strings.HasSuffix(s, "]"):
		opts, err := parseOptionBody(s[len("Enum[") : len(s)-1])
		if err != nil {
			return Type{}, err
		}
		return NewEnum(opts...)
	case strings.HasPrefix(s, "Flags[") && strings.HasSuffix(s, "]"):
		opts, err := parseOptionBody(s[len("Flags[") : len(s)-1])
		if err != nil {
			return Type{}, err
		}
		return NewFlags(opts...)
	case strings.HasPrefix(s, "Sequence<") && strings.HasSuffix(s, ">"):
		elem, err := Parse(s[len("Sequence<") : len(s)-1])
		if err != nil {
			return Type{}, err
		}
		return NewSequence(elem), nil
	case strings.HasPrefix(s, "Mapping<") && strings.HasSuffix(s, ">"):
		elem, err := Parse(s[len("Mapping<") : len(s)-1])
		if err != nil {
			return Type{}, err
		}
		return NewMapping(elem), nil
	}

	return Type{}, errInvalid("unrecognized type %q", text)
}

// parseOptionBody decodes the bracket contents of Enum[...] or Flags[...].
// The contents are a JSON array body, so string options carry quotes and may
// contain commas and brackets.
func parseOptionBody(body string) ([]any, error) {
	var opts []any
	if err := json.Unmarshal([]byte("["+body+"]"), &opts); err != nil {
		return nil, errInvalid("option list %q is not a JSON array body", body)
	}
	return opts, nil
}
