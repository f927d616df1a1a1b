package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocatchltd/heksher/pkg/settingtype"
)

func parseType(t *testing.T, text string) settingtype.Type {
	t.Helper()
	parsed, err := settingtype.Parse(text)
	require.NoError(t, err)
	return parsed
}

func baseSetting(t *testing.T) Setting {
	t.Helper()
	return Setting{
		Name:                 "cache_ttl",
		Type:                 parseType(t, "int"),
		DefaultValue:         60.0,
		ConfigurableFeatures: []string{"user", "theme"},
		Metadata:             map[string]any{"owner": "infra"},
		Version:              Version{Major: 1, Minor: 0},
	}
}

func declarationOf(s Setting) Declaration {
	return Declaration{
		Name:                 s.Name,
		ConfigurableFeatures: s.ConfigurableFeatures,
		Type:                 s.Type,
		DefaultValue:         s.DefaultValue,
		Metadata:             s.Metadata,
		Version:              s.Version,
	}
}

func levels(diffs []Difference) []Severity {
	out := make([]Severity, len(diffs))
	for i, d := range diffs {
		out[i] = d.Level
	}
	return out
}

func TestDiffDeclarationIdentical(t *testing.T) {
	t.Parallel()
	existing := baseSetting(t)
	d := diffDeclaration(existing, nil, declarationOf(existing))
	assert.Empty(t, d.differences)
}

func TestDiffConfigurableFeatures(t *testing.T) {
	t.Parallel()

	t.Run("UnusedRemovalIsMinor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.ConfigurableFeatures = []string{"user"}
		d := diffDeclaration(existing, nil, decl)
		require.Equal(t, []Severity{SeverityMinor}, levels(d.differences))
		assert.Equal(t, []string{"user"}, d.update.ConfigurableFeatures)
	})

	t.Run("UsedRemovalIsMismatchWithRuleIDs", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		rules := []RuleInfo{
			{ID: 7, ConditionFeatures: []string{"theme"}, Value: 1.0},
			{ID: 9, ConditionFeatures: []string{"user"}, Value: 2.0},
		}
		decl := declarationOf(existing)
		decl.ConfigurableFeatures = []string{"user"}
		d := diffDeclaration(existing, rules, decl)
		require.Equal(t, []Severity{SeverityMismatch}, levels(d.differences))
		assert.Equal(t, []int64{7}, d.differences[0].RuleIDs)
	})

	t.Run("AdditionIsMajor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.ConfigurableFeatures = []string{"user", "theme", "trust"}
		d := diffDeclaration(existing, nil, decl)
		assert.Equal(t, []Severity{SeverityMajor}, levels(d.differences))
	})

	t.Run("MixedAddRemoveIsMajor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.ConfigurableFeatures = []string{"user", "trust"}
		d := diffDeclaration(existing, nil, decl)
		assert.Equal(t, []Severity{SeverityMajor}, levels(d.differences))
	})
}

func TestDiffType(t *testing.T) {
	t.Parallel()

	t.Run("WideningIsMinor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.Type = parseType(t, "float")
		d := diffDeclaration(existing, nil, decl)
		assert.Equal(t, []Severity{SeverityMinor}, levels(d.differences))
	})

	t.Run("NarrowingWithValidRulesIsMajor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		existing.Type = parseType(t, "float")
		rules := []RuleInfo{{ID: 3, ConditionFeatures: []string{"user"}, Value: 4.0}}
		decl := declarationOf(existing)
		decl.Type = parseType(t, "int")
		d := diffDeclaration(existing, rules, decl)
		assert.Equal(t, []Severity{SeverityMajor}, levels(d.differences))
	})

	t.Run("NarrowingBreakingRulesIsMismatch", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		existing.Type = parseType(t, "float")
		rules := []RuleInfo{
			{ID: 3, ConditionFeatures: []string{"user"}, Value: 4.5},
			{ID: 5, ConditionFeatures: []string{"user"}, Value: 4.0},
		}
		decl := declarationOf(existing)
		decl.Type = parseType(t, "int")
		d := diffDeclaration(existing, rules, decl)
		require.Equal(t, []Severity{SeverityMismatch}, levels(d.differences))
		assert.Equal(t, []int64{3}, d.differences[0].RuleIDs)
	})
}

func TestDiffScalarsAndMetadata(t *testing.T) {
	t.Parallel()

	t.Run("RenameIsMinor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.Name = "cache_ttl_seconds"
		d := diffDeclaration(existing, nil, decl)
		require.Equal(t, []Severity{SeverityMinor}, levels(d.differences))
		assert.Equal(t, "cache_ttl_seconds", d.update.RenameTo)
	})

	t.Run("DefaultChangeIsMinor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.DefaultValue = 120.0
		d := diffDeclaration(existing, nil, decl)
		require.Equal(t, []Severity{SeverityMinor}, levels(d.differences))
		require.NotNil(t, d.update.DefaultValue)
		assert.Equal(t, 120.0, *d.update.DefaultValue)
	})

	t.Run("NumericSpellingIsNotAChange", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.DefaultValue = 60
		d := diffDeclaration(existing, nil, decl)
		assert.Empty(t, d.differences)
	})

	t.Run("MetadataPerKeyMinor", func(t *testing.T) {
		t.Parallel()
		existing := baseSetting(t)
		decl := declarationOf(existing)
		decl.Metadata = map[string]any{"owner": "platform", "tier": "gold"}
		d := diffDeclaration(existing, nil, decl)
		assert.Equal(t, []Severity{SeverityMinor, SeverityMinor}, levels(d.differences))
	})
}
