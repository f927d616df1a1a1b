package contextfeatures

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chars(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "")
}

func TestIsSupersequence(t *testing.T) {
	t.Parallel()

	t.Run("ReportsNewElements", func(t *testing.T) {
		t.Parallel()
		fresh, ok := IsSupersequence(chars("abcde"), chars("acd"))
		require.True(t, ok)
		assert.Equal(t, []NewElement{{Value: "b", Index: 1}, {Value: "e", Index: 4}}, fresh)
	})

	t.Run("SubLongerThanSuper", func(t *testing.T) {
		t.Parallel()
		_, ok := IsSupersequence(chars("abc"), chars("abcd"))
		assert.False(t, ok)
	})

	t.Run("OrderViolated", func(t *testing.T) {
		t.Parallel()
		_, ok := IsSupersequence(chars("abc"), chars("ca"))
		assert.False(t, ok)
	})

	t.Run("IdenticalSequences", func(t *testing.T) {
		t.Parallel()
		fresh, ok := IsSupersequence(chars("abc"), chars("abc"))
		require.True(t, ok)
		assert.Empty(t, fresh)
	})

	t.Run("EmptySub", func(t *testing.T) {
		t.Parallel()
		fresh, ok := IsSupersequence(chars("ab"), nil)
		require.True(t, ok)
		assert.Equal(t, []NewElement{{Value: "a", Index: 0}, {Value: "b", Index: 1}}, fresh)
	})

	t.Run("EmptyBoth", func(t *testing.T) {
		t.Parallel()
		fresh, ok := IsSupersequence(nil, nil)
		require.True(t, ok)
		assert.Empty(t, fresh)
	})
}
