// Package settings owns setting declarations and the reconciliation engine
// that processes them.
//
// A setting is a typed configuration knob: a unique name (plus optional
// aliases), a settingtype descriptor, an optional default value, the ordered
// subset of context features its rules may condition on, free-form metadata,
// and a major.minor version.
//
// Settings are created and evolved exclusively through Declare. An incoming
// declaration is diffed against the existing setting, every difference is
// classified by severity (minor, major, mismatch), and the declared version
// decides the outcome: create, no-op, report the caller as outdated, upgrade,
// or reject. Redeclaring the same version with identical attributes is an
// idempotent no-op; any actual change requires a version bump; a bump that
// would orphan existing rules (mismatch severity) is always rejected.
package settings
