package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsMatches(t *testing.T) {
	t.Parallel()

	theme := map[string]string{"theme": "black"}
	trust := map[string]string{"trust": "full"}

	t.Run("UniversalWildcard", func(t *testing.T) {
		t.Parallel()
		filter := Options{All: true}
		assert.True(t, filter.Matches(theme))
		assert.True(t, filter.Matches(trust))
		assert.True(t, filter.Matches(nil))
	})

	t.Run("WildcardAndValueSet", func(t *testing.T) {
		t.Parallel()
		filter := Options{Features: map[string]Filter{
			"theme": {Wildcard: true},
			"trust": {Values: []string{"full"}},
		}}
		assert.True(t, filter.Matches(theme), "wildcarded feature admits any value")
		assert.True(t, filter.Matches(trust), "explicit value set admits its members")
	})

	t.Run("ValueSetExcludes", func(t *testing.T) {
		t.Parallel()
		filter := Options{Features: map[string]Filter{
			"theme": {Values: []string{"blue"}},
		}}
		assert.False(t, filter.Matches(theme))
	})

	t.Run("UnlistedFeatureRejects", func(t *testing.T) {
		t.Parallel()
		// An explicit filter admits only rules conditioned inside its listed
		// features; a rule on trust cannot match a filter that only names
		// theme, whatever the value.
		filter := Options{Features: map[string]Filter{
			"theme": {Values: []string{"blue"}},
		}}
		assert.False(t, filter.Matches(trust))

		wildcarded := Options{Features: map[string]Filter{
			"theme": {Wildcard: true},
		}}
		assert.False(t, wildcarded.Matches(trust))
	})

	t.Run("EmptyConditionSetAlwaysMatches", func(t *testing.T) {
		t.Parallel()
		filter := Options{Features: map[string]Filter{
			"theme": {Values: []string{"blue"}},
		}}
		assert.True(t, filter.Matches(map[string]string{}))
	})

	t.Run("AllConditionsMustBeConsistent", func(t *testing.T) {
		t.Parallel()
		filter := Options{Features: map[string]Filter{
			"theme": {Values: []string{"black"}},
			"trust": {Values: []string{"none"}},
		}}
		both := map[string]string{"theme": "black", "trust": "full"}
		assert.False(t, filter.Matches(both))
	})
}

func TestSortByHierarchy(t *testing.T) {
	t.Parallel()

	position := map[string]int{"user": 0, "theme": 1, "trust": 2}
	list := []Rule{
		{ID: 4, Conditions: map[string]string{"trust": "full"}},
		{ID: 3, Conditions: map[string]string{"theme": "black", "user": "alice"}},
		{ID: 2, Conditions: map[string]string{"user": "alice"}},
		{ID: 1, Conditions: map[string]string{"user": "bob"}},
		{ID: 5, Conditions: map[string]string{"user": "alice"}},
	}

	sortByHierarchy(list, position)

	ids := make([]int64, len(list))
	for i, r := range list {
		ids[i] = r.ID
	}
	// (user alice) sorts before (user alice, theme black) which sorts before
	// (user bob); conditions on later features sort last; id breaks ties.
	assert.Equal(t, []int64{2, 5, 3, 1, 4}, ids)
}
