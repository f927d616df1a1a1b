package settings

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a two-component setting version, compared lexicographically by
// (major, minor). Settings start life at 1.0 and only move up.
type Version struct {
	Major int
	Minor int
}

// InitialVersion is the only version a first declaration may carry.
var InitialVersion = Version{Major: 1, Minor: 0}

// ParseVersion parses "major.minor" with non-negative decimal components.
func ParseVersion(s string) (Version, error) {
	majorText, minorText, found := strings.Cut(s, ".")
	if !found {
		return Version{}, fmt.Errorf("%w: %q is not of the form major.minor", ErrInvalidVersion, s)
	}
	major, err := strconv.Atoi(majorText)
	if err != nil || major < 0 || (len(majorText) > 1 && majorText[0] == '0') {
		return Version{}, fmt.Errorf("%w: bad major component in %q", ErrInvalidVersion, s)
	}
	minor, err := strconv.Atoi(minorText)
	if err != nil || minor < 0 || (len(minorText) > 1 && minorText[0] == '0') {
		return Version{}, fmt.Errorf("%w: bad minor component in %q", ErrInvalidVersion, s)
	}
	return Version{Major: major, Minor: minor}, nil
}

func (v Version) String() string {
	return strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor)
}

// Compare returns -1, 0 or 1 as v sorts below, equal to, or above other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		if v.Major < other.Major {
			return -1
		}
		return 1
	case v.Minor != other.Minor:
		if v.Minor < other.Minor {
			return -1
		}
		return 1
	}
	return 0
}

// MarshalText renders the wire form, so JSON payloads carry "1.0" strings.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses the wire form.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
