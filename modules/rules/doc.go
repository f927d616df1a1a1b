// Package rules owns context-conditional overrides of setting values and the
// query engine that selects them.
//
// A rule belongs to one setting, carries a non-empty set of exact-match
// conditions over the setting's configurable features, a value that satisfied
// the setting's type when the rule was inserted, and free-form metadata. No
// two rules of a setting may share a condition set.
//
// Queries filter rules by a per-feature Options filter: a feature is either
// unconstrained, wildcarded, or restricted to an explicit value set. A rule
// matches when every one of its conditions is consistent with the filter; a
// rule with no filterable conflict and an empty condition set always matches.
// Matches are returned per setting, ordered by the context feature hierarchy.
package rules
