package contextfeatures

import (
	"fmt"
	"sort"
)

// Feature is a registry entry: a context feature name and its zero-based
// position in the hierarchy.
type Feature struct {
	Name  string `json:"name"`
	Index int    `json:"index"`
}

// planStartup reconciles the persisted registry against the expected
// ordering. It returns the rows to insert (empty registry only) and the rows
// whose index must be rewritten. A set-level disagreement between persisted
// and expected names yields ErrConfigurationMismatch.
func planStartup(persisted []Feature, expected []string) (inserts, updates []Feature, err error) {
	if len(persisted) == 0 {
		inserts = make([]Feature, len(expected))
		for i, name := range expected {
			inserts[i] = Feature{Name: name, Index: i}
		}
		return inserts, nil, nil
	}

	current := make(map[string]int, len(persisted))
	for _, f := range persisted {
		current[f.Name] = f.Index
	}

	var missing, unexpected []string
	wanted := make(map[string]struct{}, len(expected))
	for _, name := range expected {
		wanted[name] = struct{}{}
		if _, ok := current[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range current {
		if _, ok := wanted[name]; !ok {
			unexpected = append(unexpected, name)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Strings(missing)
		sort.Strings(unexpected)
		return nil, nil, fmt.Errorf("%w: missing %v, unexpected %v",
			ErrConfigurationMismatch, missing, unexpected)
	}

	// Only drifted rows are rewritten, so a registry already in the expected
	// order sees no churn.
	for i, name := range expected {
		if current[name] != i {
			updates = append(updates, Feature{Name: name, Index: i})
		}
	}
	return nil, updates, nil
}

// planMove computes the minimal index rewrites that relocate moved to sit
// immediately before or after anchor. current must be sorted by index.
func planMove(current []Feature, moved, anchor string, before bool) ([]Feature, error) {
	if moved == anchor {
		return nil, nil
	}

	oldIndex := make(map[string]int, len(current))
	remainder := make([]string, 0, len(current)-1)
	found, anchorFound := false, false
	for _, f := range current {
		oldIndex[f.Name] = f.Index
		if f.Name == moved {
			found = true
			continue
		}
		if f.Name == anchor {
			anchorFound = true
		}
		remainder = append(remainder, f.Name)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, moved)
	}
	if !anchorFound {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, anchor)
	}

	desired := make([]string, 0, len(current))
	for _, name := range remainder {
		if name == anchor && before {
			desired = append(desired, moved)
		}
		desired = append(desired, name)
		if name == anchor && !before {
			desired = append(desired, moved)
		}
	}

	// The unchanged features form a subsequence of the desired order; the
	// supersequence match pins down the single new element (the moved one)
	// and guards against a malformed plan.
	fresh, ok := IsSupersequence(desired, remainder)
	if !ok || len(fresh) != 1 || fresh[0].Value != moved {
		return nil, fmt.Errorf("reorder plan for %q is not a supersequence of the remaining features", moved)
	}

	var changed []Feature
	for i, name := range desired {
		if oldIndex[name] != i {
			changed = append(changed, Feature{Name: name, Index: i})
		}
	}
	return changed, nil
}
