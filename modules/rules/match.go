package rules

import "sort"

// Rule is one context-conditional override of a setting's value.
type Rule struct {
	ID         int64             `json:"id"`
	Setting    string            `json:"setting"`
	Conditions map[string]string `json:"conditions"`
	Value      any               `json:"value"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Filter constrains one context feature in a query.
type Filter struct {
	// Wildcard admits any value of the feature.
	Wildcard bool
	// Values is the admitted value set when Wildcard is false.
	Values []string
}

// Options is the per-feature filter of a rule query. The zero value with All
// set is the universal wildcard; otherwise Features maps registry features to
// their constraint, and an explicit filter admits only rules whose conditions
// stay inside the listed features.
type Options struct {
	All      bool
	Features map[string]Filter
}

// Matches reports whether the rule's condition set is consistent with the
// filter: every condition's feature must be listed, and its value must be
// wildcarded or present in the feature's value set. A condition on a feature
// the filter does not mention rejects the rule. A rule with an empty
// condition set matches any filter.
func (o Options) Matches(conditions map[string]string) bool {
	if o.All {
		return true
	}
	for feature, value := range conditions {
		constraint, constrained := o.Features[feature]
		if !constrained {
			return false
		}
		if constraint.Wildcard {
			continue
		}
		admitted := false
		for _, v := range constraint.Values {
			if v == value {
				admitted = true
				break
			}
		}
		if !admitted {
			return false
		}
	}
	return true
}

// conditionTuples renders a rule's conditions as (feature index, value)
// pairs sorted by the registry hierarchy.
func conditionTuples(conditions map[string]string, position map[string]int) [][2]any {
	features := make([]string, 0, len(conditions))
	for f := range conditions {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool {
		return position[features[i]] < position[features[j]]
	})
	tuples := make([][2]any, len(features))
	for i, f := range features {
		tuples[i] = [2]any{position[f], conditions[f]}
	}
	return tuples
}

// sortByHierarchy orders rules by comparing their condition tuples
// lexicographically, with the rule id as the final tiebreaker.
func sortByHierarchy(list []Rule, position map[string]int) {
	sort.Slice(list, func(i, j int) bool {
		a := conditionTuples(list[i].Conditions, position)
		b := conditionTuples(list[j].Conditions, position)
		for k := 0; k < len(a) && k < len(b); k++ {
			ai, bi := a[k][0].(int), b[k][0].(int)
			if ai != bi {
				return ai < bi
			}
			av, bv := a[k][1].(string), b[k][1].(string)
			if av != bv {
				return av < bv
			}
		}
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return list[i].ID < list[j].ID
	})
}
