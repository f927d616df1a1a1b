package settings

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Severity classifies a declaration difference by its backward-compatibility
// impact. Minor differences are always safe to apply; major differences
// require a major version bump; mismatch differences would break existing
// rules and are never applied.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityMismatch Severity = "mismatch"
)

// Difference is one classified divergence between a declaration and the
// existing setting. Differences are transient reconciliation output and are
// never persisted.
type Difference struct {
	Level   Severity `json:"level"`
	Message string   `json:"message"`
	// RuleIDs lists the rules a mismatch-severity difference would break.
	RuleIDs []int64 `json:"rule_ids,omitempty"`
}

// RuleInfo is the slice of a rule the reconciliation engine needs: which
// features its conditions use and the stored value to re-validate against a
// type change.
type RuleInfo struct {
	ID                int64
	ConditionFeatures []string
	Value             any
}

// declarationDiff pairs the classified differences with the attribute update
// that would apply them.
type declarationDiff struct {
	differences []Difference
	update      Update
}

func (d declarationDiff) has(level Severity) bool {
	for _, diff := range d.differences {
		if diff.Level == level {
			return true
		}
	}
	return false
}

// diffDeclaration compares decl against the existing setting, attribute by
// attribute. It is pure: all inputs are loaded beforehand and nothing is
// written here.
func diffDeclaration(existing Setting, rules []RuleInfo, decl Declaration) declarationDiff {
	var d declarationDiff
	d.update.Version = decl.Version

	diffConfigurableFeatures(&d, existing, rules, decl)
	diffType(&d, existing, rules, decl)

	if decl.Name != existing.Name {
		d.differences = append(d.differences, Difference{
			Level:   SeverityMinor,
			Message: fmt.Sprintf("renamed from %q to %q", existing.Name, decl.Name),
		})
		d.update.RenameTo = decl.Name
	}

	if !jsonEqual(existing.DefaultValue, decl.DefaultValue) {
		d.differences = append(d.differences, Difference{
			Level:   SeverityMinor,
			Message: fmt.Sprintf("default value changed from %s to %s", jsonText(existing.DefaultValue), jsonText(decl.DefaultValue)),
		})
		value := decl.DefaultValue
		d.update.DefaultValue = &value
	}

	diffMetadata(&d, existing.Metadata, decl.Metadata)
	return d
}

func diffConfigurableFeatures(d *declarationDiff, existing Setting, rules []RuleInfo, decl Declaration) {
	oldSet := toSet(existing.ConfigurableFeatures)
	newSet := toSet(decl.ConfigurableFeatures)

	var added, removed []string
	for _, f := range decl.ConfigurableFeatures {
		if _, ok := oldSet[f]; !ok {
			added = append(added, f)
		}
	}
	for _, f := range existing.ConfigurableFeatures {
		if _, ok := newSet[f]; !ok {
			removed = append(removed, f)
		}
	}
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	mismatched := false
	for _, feature := range removed {
		var offenders []int64
		for _, rule := range rules {
			for _, cf := range rule.ConditionFeatures {
				if cf == feature {
					offenders = append(offenders, rule.ID)
					break
				}
			}
		}
		if len(offenders) > 0 {
			mismatched = true
			d.differences = append(d.differences, Difference{
				Level:   SeverityMismatch,
				Message: fmt.Sprintf("removal of configurable feature %q would orphan existing rules", feature),
				RuleIDs: offenders,
			})
		}
	}

	switch {
	case len(added) > 0:
		d.differences = append(d.differences, Difference{
			Level: SeverityMajor,
			Message: fmt.Sprintf("configurable features changed from %v to %v",
				existing.ConfigurableFeatures, decl.ConfigurableFeatures),
		})
	case !mismatched:
		// Strict removal of features no rule conditions on.
		d.differences = append(d.differences, Difference{
			Level:   SeverityMinor,
			Message: fmt.Sprintf("removal of unused configurable features %v", removed),
		})
	}
	d.update.ConfigurableFeatures = decl.ConfigurableFeatures
}

func diffType(d *declarationDiff, existing Setting, rules []RuleInfo, decl Declaration) {
	if decl.Type.Equal(existing.Type) {
		return
	}

	if existing.Type.Less(decl.Type) {
		// Widening: every value valid under the old type stays valid.
		d.differences = append(d.differences, Difference{
			Level:   SeverityMinor,
			Message: fmt.Sprintf("type widened from %s to %s", existing.Type, decl.Type),
		})
	} else {
		var offenders []int64
		for _, rule := range rules {
			if !decl.Type.Validate(rule.Value) {
				offenders = append(offenders, rule.ID)
			}
		}
		if len(offenders) > 0 {
			d.differences = append(d.differences, Difference{
				Level:   SeverityMismatch,
				Message: fmt.Sprintf("type change from %s to %s invalidates existing rule values", existing.Type, decl.Type),
				RuleIDs: offenders,
			})
			return
		}
		d.differences = append(d.differences, Difference{
			Level:   SeverityMajor,
			Message: fmt.Sprintf("type changed from %s to %s", existing.Type, decl.Type),
		})
	}
	declared := decl.Type
	d.update.Type = &declared
}

func diffMetadata(d *declarationDiff, existing, declared map[string]any) {
	keys := make(map[string]struct{}, len(existing)+len(declared))
	for k := range existing {
		keys[k] = struct{}{}
	}
	for k := range declared {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	changed := false
	for _, key := range sorted {
		oldValue, hadOld := existing[key]
		newValue, hasNew := declared[key]
		switch {
		case hadOld && !hasNew:
			changed = true
			d.differences = append(d.differences, Difference{
				Level:   SeverityMinor,
				Message: fmt.Sprintf("metadata key %q removed", key),
			})
		case !hadOld && hasNew:
			changed = true
			d.differences = append(d.differences, Difference{
				Level:   SeverityMinor,
				Message: fmt.Sprintf("metadata key %q added", key),
			})
		case !jsonEqual(oldValue, newValue):
			changed = true
			d.differences = append(d.differences, Difference{
				Level:   SeverityMinor,
				Message: fmt.Sprintf("metadata key %q changed", key),
			})
		}
	}
	if changed {
		if declared == nil {
			declared = map[string]any{}
		}
		d.update.Metadata = declared
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// jsonEqual compares two decoded-JSON values semantically: numeric spellings
// unify, ordering of map keys is irrelevant.
func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeJSON(a), normalizeJSON(b))
}

func normalizeJSON(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return string(x)
		}
		return f
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = normalizeJSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = normalizeJSON(item)
		}
		return out
	}
	return v
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
