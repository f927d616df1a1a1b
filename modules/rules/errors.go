package rules

import "errors"

var (
	// ErrNotFound reports an unknown rule id.
	ErrNotFound = errors.New("rule not found")
	// ErrConditionConflict reports a second rule of the same setting with an
	// identical condition set.
	ErrConditionConflict = errors.New("conflicting rule condition set")
	// ErrEmptyConditions reports a rule with no conditions at all.
	ErrEmptyConditions = errors.New("rule condition set must not be empty")
	// ErrFeatureNotConfigurable reports a condition on a feature the setting
	// does not allow rules to condition on.
	ErrFeatureNotConfigurable = errors.New("context feature is not configurable for this setting")
	// ErrValueMismatch reports a rule value that does not satisfy the
	// setting's type.
	ErrValueMismatch = errors.New("rule value does not match setting type")
	// ErrUnknownFilterFeatures reports filter dimensions absent from the
	// context feature registry.
	ErrUnknownFilterFeatures = errors.New("unknown context features in filter")
)
