package rules_test

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocatchltd/heksher/modules/contextfeatures"
	"github.com/biocatchltd/heksher/modules/rules"
	"github.com/biocatchltd/heksher/modules/settings"
	"github.com/biocatchltd/heksher/pkg/settingtype"
)

type memRuleStore struct {
	nextID int64
	rules  map[int64]rules.Rule
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{nextID: 1, rules: map[int64]rules.Rule{}}
}

func (m *memRuleStore) Insert(_ context.Context, rule rules.Rule) (int64, error) {
	for _, existing := range m.rules {
		if existing.Setting == rule.Setting && maps.Equal(existing.Conditions, rule.Conditions) {
			return 0, fmt.Errorf("%w: rule %d", rules.ErrConditionConflict, existing.ID)
		}
	}
	rule.ID = m.nextID
	m.nextID++
	m.rules[rule.ID] = rule
	return rule.ID, nil
}

func (m *memRuleStore) Get(_ context.Context, id int64) (*rules.Rule, error) {
	rule, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", rules.ErrNotFound, id)
	}
	return &rule, nil
}

func (m *memRuleStore) Delete(_ context.Context, id int64) error {
	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: %d", rules.ErrNotFound, id)
	}
	delete(m.rules, id)
	return nil
}

// cascadeSetting drops all rules of a setting, mirroring the schema's
// ON DELETE CASCADE from settings to rules.
func (m *memRuleStore) cascadeSetting(name string) {
	for id, rule := range m.rules {
		if rule.Setting == name {
			delete(m.rules, id)
		}
	}
}

func (m *memRuleStore) ByConditions(_ context.Context, setting string, conditions map[string]string) (*rules.Rule, error) {
	for _, rule := range m.rules {
		if rule.Setting == setting && maps.Equal(rule.Conditions, conditions) {
			return &rule, nil
		}
	}
	return nil, nil
}

func (m *memRuleStore) UpdateValue(_ context.Context, id int64, value any) error {
	rule, ok := m.rules[id]
	if !ok {
		return fmt.Errorf("%w: %d", rules.ErrNotFound, id)
	}
	rule.Value = value
	m.rules[id] = rule
	return nil
}

func (m *memRuleStore) ListForSettings(_ context.Context, names []string) (map[string][]rules.Rule, error) {
	result := map[string][]rules.Rule{}
	var ids []int64
	for id := range m.rules {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rule := m.rules[id]
		for _, name := range names {
			if rule.Setting == name {
				result[name] = append(result[name], rule)
			}
		}
	}
	return result, nil
}

type memCatalog map[string]*settings.Setting

func (m memCatalog) Get(_ context.Context, name string) (*settings.Setting, error) {
	if s, ok := m[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", settings.ErrNotFound, name)
}

func (m memCatalog) Resolve(_ context.Context, name string) (string, error) {
	if _, ok := m[name]; ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", settings.ErrNotFound, name)
}

func (m memCatalog) ListNames(context.Context) ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

type memFeatureIndex []string

func (m memFeatureIndex) List(context.Context) ([]contextfeatures.Feature, error) {
	features := make([]contextfeatures.Feature, len(m))
	for i, name := range m {
		features[i] = contextfeatures.Feature{Name: name, Index: i}
	}
	return features, nil
}

func testSetting(t *testing.T, name, typeText string, features ...string) *settings.Setting {
	t.Helper()
	typ, err := settingtype.Parse(typeText)
	require.NoError(t, err)
	return &settings.Setting{
		Name:                 name,
		Type:                 typ,
		ConfigurableFeatures: features,
		Version:              settings.InitialVersion,
	}
}

func newTestService(t *testing.T, catalog memCatalog) (*rules.Service, *memRuleStore) {
	t.Helper()
	store := newMemRuleStore()
	svc := rules.NewService(store, catalog, memFeatureIndex{"user", "theme", "trust"}, nil)
	return svc, store
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme", "trust")}
	svc, _ := newTestService(t, catalog)

	t.Run("UnknownSetting", func(t *testing.T) {
		_, err := svc.Add(ctx, "ghost", map[string]string{"theme": "black"}, "x", nil)
		require.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("EmptyConditions", func(t *testing.T) {
		_, err := svc.Add(ctx, "banner", nil, "x", nil)
		require.ErrorIs(t, err, rules.ErrEmptyConditions)
	})

	t.Run("NotConfigurableFeature", func(t *testing.T) {
		_, err := svc.Add(ctx, "banner", map[string]string{"user": "alice"}, "x", nil)
		require.ErrorIs(t, err, rules.ErrFeatureNotConfigurable)
	})

	t.Run("ValueTypeMismatch", func(t *testing.T) {
		_, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, 7.0, nil)
		require.ErrorIs(t, err, rules.ErrValueMismatch)
	})

	t.Run("DuplicateConditionSet", func(t *testing.T) {
		conditions := map[string]string{"theme": "dark"}
		_, err := svc.Add(ctx, "banner", conditions, "a", nil)
		require.NoError(t, err)
		_, err = svc.Add(ctx, "banner", conditions, "b", nil)
		require.ErrorIs(t, err, rules.ErrConditionConflict)
	})
}

func TestPatchValueRevalidates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme")}
	svc, store := newTestService(t, catalog)

	id, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, "hi", nil)
	require.NoError(t, err)

	require.ErrorIs(t, svc.PatchValue(ctx, id, 1.0), rules.ErrValueMismatch)
	require.NoError(t, svc.PatchValue(ctx, id, "bye"))
	assert.Equal(t, "bye", store.rules[id].Value)
}

func TestSearchExactConditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme", "trust")}
	svc, _ := newTestService(t, catalog)

	id, err := svc.Add(ctx, "banner", map[string]string{"theme": "black", "trust": "full"}, "x", nil)
	require.NoError(t, err)

	found, err := svc.Search(ctx, "banner", map[string]string{"trust": "full", "theme": "black"})
	require.NoError(t, err)
	assert.Equal(t, id, found.ID)

	// A subset of the conditions is not an exact match.
	_, err = svc.Search(ctx, "banner", map[string]string{"theme": "black"})
	require.ErrorIs(t, err, rules.ErrNotFound)
}

func TestQuerySubsetSemantics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme", "trust")}
	svc, _ := newTestService(t, catalog)

	themeRule, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, "a", nil)
	require.NoError(t, err)
	trustRule, err := svc.Add(ctx, "banner", map[string]string{"trust": "full"}, "b", nil)
	require.NoError(t, err)

	t.Run("WildcardPlusValueSetReturnsBoth", func(t *testing.T) {
		result, err := svc.Query(ctx, rules.QueryRequest{
			Settings: []string{"banner"},
			Filter: rules.Options{Features: map[string]rules.Filter{
				"theme": {Wildcard: true},
				"trust": {Values: []string{"full"}},
			}},
		})
		require.NoError(t, err)
		require.Len(t, result["banner"], 2)
		assert.Equal(t, themeRule, result["banner"][0].ID)
		assert.Equal(t, trustRule, result["banner"][1].ID)
	})

	t.Run("NonMatchingValueSetReturnsNeither", func(t *testing.T) {
		result, err := svc.Query(ctx, rules.QueryRequest{
			Settings: []string{"banner"},
			Filter: rules.Options{Features: map[string]rules.Filter{
				"theme": {Values: []string{"blue"}},
			}},
		})
		require.NoError(t, err)
		assert.Empty(t, result["banner"])
	})
}

func TestQueryValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme")}
	svc, _ := newTestService(t, catalog)

	t.Run("UnknownSettingNames", func(t *testing.T) {
		_, err := svc.Query(ctx, rules.QueryRequest{Settings: []string{"banner", "ghost"}})
		require.ErrorIs(t, err, settings.ErrNotFound)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("UnknownFilterFeatures", func(t *testing.T) {
		_, err := svc.Query(ctx, rules.QueryRequest{
			Settings: []string{"banner"},
			Filter:   rules.Options{Features: map[string]rules.Filter{"galaxy": {Wildcard: true}}},
		})
		require.ErrorIs(t, err, rules.ErrUnknownFilterFeatures)
		assert.Contains(t, err.Error(), "galaxy")
	})
}

func TestSettingDeletionCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{"banner": testSetting(t, "banner", "str", "theme", "trust")}
	svc, store := newTestService(t, catalog)

	_, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, "a", nil)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "banner", map[string]string{"trust": "full"}, "b", nil)
	require.NoError(t, err)

	// Deleting the setting removes its rules with it.
	delete(catalog, "banner")
	store.cascadeSetting("banner")
	assert.Empty(t, store.rules)

	t.Run("AddAfterDeleteIsNotFound", func(t *testing.T) {
		_, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, "a", nil)
		require.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("SearchAfterDeleteIsNotFound", func(t *testing.T) {
		_, err := svc.Search(ctx, "banner", map[string]string{"theme": "black"})
		require.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("QueryByNameIsNotFound", func(t *testing.T) {
		_, err := svc.Query(ctx, rules.QueryRequest{Settings: []string{"banner"}})
		require.ErrorIs(t, err, settings.ErrNotFound)
	})

	t.Run("QueryAllOmitsDeletedSetting", func(t *testing.T) {
		result, err := svc.Query(ctx, rules.QueryRequest{Filter: rules.Options{All: true}})
		require.NoError(t, err)
		assert.NotContains(t, result, "banner")
	})
}

func TestQueryAllSettingsAndMetadata(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	catalog := memCatalog{
		"banner":  testSetting(t, "banner", "str", "theme"),
		"retries": testSetting(t, "retries", "int", "user"),
	}
	svc, _ := newTestService(t, catalog)

	_, err := svc.Add(ctx, "banner", map[string]string{"theme": "black"}, "a",
		map[string]any{"added_by": "ops"})
	require.NoError(t, err)

	t.Run("NilSettingsMeansAll", func(t *testing.T) {
		result, err := svc.Query(ctx, rules.QueryRequest{Filter: rules.Options{All: true}})
		require.NoError(t, err)
		assert.Len(t, result, 2)
		assert.Empty(t, result["retries"], "settings without matches map to an empty list")
	})

	t.Run("MetadataOnlyWhenRequested", func(t *testing.T) {
		without, err := svc.Query(ctx, rules.QueryRequest{Filter: rules.Options{All: true}})
		require.NoError(t, err)
		assert.Nil(t, without["banner"][0].Metadata)

		with, err := svc.Query(ctx, rules.QueryRequest{Filter: rules.Options{All: true}, IncludeMetadata: true})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"added_by": "ops"}, with["banner"][0].Metadata)
	})

	t.Run("ConditionsEmittedInRegistryOrder", func(t *testing.T) {
		catalog["both"] = testSetting(t, "both", "str", "user", "trust")
		_, err := svc.Add(ctx, "both", map[string]string{"trust": "full", "user": "alice"}, "x", nil)
		require.NoError(t, err)
		result, err := svc.Query(ctx, rules.QueryRequest{Settings: []string{"both"}, Filter: rules.Options{All: true}})
		require.NoError(t, err)
		require.Len(t, result["both"], 1)
		assert.Equal(t, []rules.Condition{
			{ContextFeature: "user", Value: "alice"},
			{ContextFeature: "trust", Value: "full"},
		}, result["both"][0].Conditions)
	})
}
