package settings

import (
	"time"

	"github.com/biocatchltd/heksher/pkg/settingtype"
)

// Setting is a declared configuration knob.
type Setting struct {
	Name string
	Type settingtype.Type
	// DefaultValue is the value returned when no rule matches; nil means the
	// setting has no default. When present it satisfies Type.
	DefaultValue any
	// ConfigurableFeatures is the subset of registry context features rules
	// of this setting may condition on, in registry order.
	ConfigurableFeatures []string
	Metadata             map[string]any
	// Aliases are alternate names, each globally unique across all settings
	// and all canonical names.
	Aliases []string
	Version Version

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Declaration is one incoming declare request, already parsed and typed.
type Declaration struct {
	Name                 string
	ConfigurableFeatures []string
	Type                 settingtype.Type
	DefaultValue         any
	Metadata             map[string]any
	// Alias optionally names the setting this declaration continues; used to
	// rename a setting by declaring a new canonical name with the old one as
	// the alias.
	Alias   string
	Version Version
}

// Update carries the attribute changes an accepted upgrade applies. Nil
// pointer fields and nil slices mean "leave unchanged".
type Update struct {
	Type                 *settingtype.Type
	DefaultValue         *any
	ConfigurableFeatures []string
	Metadata             map[string]any
	// RenameTo is the new canonical name; the old name is kept as an alias.
	RenameTo string
	Version  Version
}
