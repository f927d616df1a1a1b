package contextfeatures

import "errors"

var (
	// ErrNotFound reports a context feature name absent from the registry.
	ErrNotFound = errors.New("context feature not found")
	// ErrAlreadyExists reports an attempt to add a name the registry has.
	ErrAlreadyExists = errors.New("context feature already exists")
	// ErrInUse reports a delete of a feature still referenced by a setting's
	// configurable features.
	ErrInUse = errors.New("context feature is in use")
	// ErrConfigurationMismatch reports a startup expected-feature set that
	// disagrees with the persisted registry. It is fatal: the service must
	// not start against a registry it does not recognize.
	ErrConfigurationMismatch = errors.New("context feature configuration mismatch")
)
