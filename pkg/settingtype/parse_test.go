package settingtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocatchltd/heksher/pkg/settingtype"
)

func TestParsePrimitives(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"int", "float", "str", "bool"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			parsed, err := settingtype.Parse(name)
			require.NoError(t, err)
			assert.Equal(t, name, parsed.String())
		})
	}
}

func TestParseOptionTypes(t *testing.T) {
	t.Parallel()

	t.Run("EnumCanonicalOrder", func(t *testing.T) {
		t.Parallel()
		parsed, err := settingtype.Parse(`Enum["b","a","c"]`)
		require.NoError(t, err)
		assert.Equal(t, `Enum["a","b","c"]`, parsed.String())
	})

	t.Run("NumericOptionsUnify", func(t *testing.T) {
		t.Parallel()
		a, err := settingtype.Parse(`Enum[1,2]`)
		require.NoError(t, err)
		b, err := settingtype.Parse(`Enum[1.0,2.0]`)
		require.NoError(t, err)
		assert.True(t, a.Equal(b))
		assert.Equal(t, `Enum[1,2]`, b.String())
	})

	t.Run("StringOptionWithComma", func(t *testing.T) {
		t.Parallel()
		parsed, err := settingtype.Parse(`Flags["a,b","c"]`)
		require.NoError(t, err)
		assert.Len(t, parsed.Options(), 2)
	})

	t.Run("EmptyOptionsRejected", func(t *testing.T) {
		t.Parallel()
		_, err := settingtype.Parse(`Enum[]`)
		require.ErrorIs(t, err, settingtype.ErrInvalidType)
	})

	t.Run("NonPrimitiveOptionRejected", func(t *testing.T) {
		t.Parallel()
		_, err := settingtype.Parse(`Enum[[1,2]]`)
		require.ErrorIs(t, err, settingtype.ErrInvalidType)
	})
}

func TestParseGenerics(t *testing.T) {
	t.Parallel()

	t.Run("Nested", func(t *testing.T) {
		t.Parallel()
		parsed, err := settingtype.Parse(`Mapping<Sequence<Enum["x","y"]>>`)
		require.NoError(t, err)
		assert.Equal(t, `Mapping<Sequence<Enum["x","y"]>>`, parsed.String())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		t.Parallel()
		for _, text := range []string{
			"int",
			`Enum[1,2,3]`,
			`Flags["read","write"]`,
			`Sequence<float>`,
			`Mapping<Flags["a"]>`,
		} {
			parsed, err := settingtype.Parse(text)
			require.NoError(t, err, text)
			again, err := settingtype.Parse(parsed.String())
			require.NoError(t, err, text)
			assert.True(t, parsed.Equal(again), text)
		}
	})
}

func TestParseRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"", "integer", "Enum", "Enum[", "Sequence<>", "Sequence<nope>",
		"Mapping<int", `Enum[1,}`,
	} {
		_, err := settingtype.Parse(text)
		assert.ErrorIs(t, err, settingtype.ErrInvalidType, "input %q", text)
	}
}
