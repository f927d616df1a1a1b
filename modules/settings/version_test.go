package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biocatchltd/heksher/modules/settings"
)

func TestParseVersion(t *testing.T) {
	t.Parallel()

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		v, err := settings.ParseVersion("2.13")
		require.NoError(t, err)
		assert.Equal(t, settings.Version{Major: 2, Minor: 13}, v)
		assert.Equal(t, "2.13", v.String())
	})

	t.Run("Malformed", func(t *testing.T) {
		t.Parallel()
		for _, s := range []string{"", "1", "1.", ".0", "1.0.0", "-1.0", "1.-2", "a.b", "01.2", "1.02"} {
			_, err := settings.ParseVersion(s)
			assert.ErrorIs(t, err, settings.ErrInvalidVersion, "input %q", s)
		}
	})
}

func TestVersionCompare(t *testing.T) {
	t.Parallel()

	v := func(major, minor int) settings.Version { return settings.Version{Major: major, Minor: minor} }

	assert.Equal(t, 0, v(1, 2).Compare(v(1, 2)))
	assert.Equal(t, -1, v(1, 2).Compare(v(1, 3)))
	assert.Equal(t, 1, v(2, 0).Compare(v(1, 9)))
	// Lexicographic, not numeric on the joined string: 1.10 > 1.9.
	assert.Equal(t, 1, v(1, 10).Compare(v(1, 9)))
}
