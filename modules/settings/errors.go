package settings

import "errors"

var (
	// ErrNotFound reports an unknown setting name or alias.
	ErrNotFound = errors.New("setting not found")
	// ErrAliasConflict reports a declaration whose name and alias resolve to
	// different settings, or an alias already claimed by another setting.
	ErrAliasConflict = errors.New("conflicting setting alias")
	// ErrUnknownContextFeatures reports configurable features absent from the
	// context feature registry.
	ErrUnknownContextFeatures = errors.New("unknown context features")
	// ErrInvalidVersion reports a malformed version string or a first
	// declaration at a version other than 1.0.
	ErrInvalidVersion = errors.New("invalid setting version")
	// ErrInvalidDefault reports a default value that does not satisfy the
	// declared type.
	ErrInvalidDefault = errors.New("default value does not match setting type")
	// ErrConcurrentUpdate reports a declaration that lost a race with another
	// writer between diffing and applying.
	ErrConcurrentUpdate = errors.New("setting was concurrently modified")
)
