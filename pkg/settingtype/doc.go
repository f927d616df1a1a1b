// Package settingtype implements the type grammar used to validate setting
// values and to reason about schema evolution.
//
// A type is one of the primitives (int, float, str, bool), an option type
// (Enum[...] or Flags[...]), or a generic container (Sequence<T> or
// Mapping<T>). Types are represented as a closed tagged variant rather than
// an open interface hierarchy, so validation, formatting and the structural
// order are finite case analyses.
//
// # Grammar
//
//	int | float | str | bool
//	Enum[opt, ...]    value equals one of the options
//	Flags[opt, ...]   value is a duplicate-free list of options
//	Sequence<T>       value is a list whose elements satisfy T
//	Mapping<T>        value is a string-keyed map whose values satisfy T
//
// Option lists are JSON array bodies, so Enum["a","b"] and Enum[1,2.5] are
// both valid. Options form a semantic set of JSON primitives: the numeric
// options 1 and 1.0 are the same option. The canonical string form produced
// by Type.String sorts options, so Parse followed by String is normalizing
// rather than identity-preserving.
//
// # Structural order
//
// Less(a, b) reports whether every value valid for a is guaranteed valid for
// b. It is a strict partial order: irreflexive, asymmetric and transitive.
// The reconciliation engine uses it to classify a type change as a widening
// (minor) versus anything that needs value-level re-validation.
//
// # Usage
//
//	t, err := settingtype.Parse(`Sequence<Enum["red","green"]>`)
//	if err != nil {
//		// malformed type string
//	}
//	ok := t.Validate([]any{"red", "red"}) // true
package settingtype
