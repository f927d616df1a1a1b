package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// OutcomeKind names the five declaration outcomes plus the equal-version
// mismatch report.
type OutcomeKind string

const (
	OutcomeCreated  OutcomeKind = "created"
	OutcomeUpToDate OutcomeKind = "uptodate"
	OutcomeOutdated OutcomeKind = "outdated"
	OutcomeUpgraded OutcomeKind = "upgraded"
	OutcomeRejected OutcomeKind = "rejected"
	OutcomeMismatch OutcomeKind = "mismatch"
)

// Outcome is the structured result of one declaration. Rejected and mismatch
// are results, not errors: the engine reports them without mutating anything.
type Outcome struct {
	Kind OutcomeKind `json:"outcome"`
	// PreviousVersion is the setting's version before the declaration; zero
	// for created.
	PreviousVersion Version `json:"previous_version,omitzero"`
	// LatestVersion is the setting's version after the declaration was
	// processed. For outdated callers this is the real latest version.
	LatestVersion Version      `json:"latest_version"`
	Differences   []Difference `json:"differences,omitempty"`
}

// SettingStore is the narrow persistence surface the reconciliation engine
// needs.
type SettingStore interface {
	// GetForDeclare resolves name (canonical or alias) to its setting, or
	// returns (nil, nil) when nothing matches.
	GetForDeclare(ctx context.Context, name string) (*Setting, error)
	// Create persists a brand-new setting; a name or alias collision with a
	// concurrent writer surfaces as ErrAliasConflict.
	Create(ctx context.Context, setting Setting) error
	// Upgrade applies update to the named setting, guarded by the version the
	// engine diffed against; a lost race surfaces as ErrConcurrentUpdate.
	Upgrade(ctx context.Context, name string, expected Version, update Update) error
}

// RuleReader supplies the rule slices the engine re-validates during diffing.
type RuleReader interface {
	SettingRuleInfo(ctx context.Context, setting string) ([]RuleInfo, error)
}

// FeatureLister exposes the context feature registry ordering.
type FeatureLister interface {
	Names(ctx context.Context) ([]string, error)
}

// Reconciler processes setting declarations.
type Reconciler struct {
	settings SettingStore
	rules    RuleReader
	features FeatureLister
	log      *slog.Logger
}

func NewReconciler(settings SettingStore, rules RuleReader, features FeatureLister, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{settings: settings, rules: rules, features: features, log: log}
}

// Declare runs the reconciliation algorithm for one declaration. All
// validation happens before any write; rejected and mismatch outcomes leave
// the store untouched.
func (r *Reconciler) Declare(ctx context.Context, decl Declaration) (Outcome, error) {
	if decl.DefaultValue != nil && !decl.Type.Validate(decl.DefaultValue) {
		return Outcome{}, fmt.Errorf("%w: %s is not a valid %s",
			ErrInvalidDefault, jsonText(decl.DefaultValue), decl.Type)
	}

	registry, err := r.features.Names(ctx)
	if err != nil {
		return Outcome{}, err
	}
	ordered, err := orderByRegistry(decl.ConfigurableFeatures, registry)
	if err != nil {
		return Outcome{}, err
	}
	decl.ConfigurableFeatures = ordered

	existing, err := r.resolve(ctx, decl)
	if err != nil {
		return Outcome{}, err
	}

	if existing == nil {
		return r.create(ctx, decl)
	}

	// A rename is only expressed by declaring the old canonical name as the
	// alias; resolving through any other alias keeps the canonical name.
	if decl.Alias != existing.Name {
		decl.Name = existing.Name
	}

	rules, err := r.rules.SettingRuleInfo(ctx, existing.Name)
	if err != nil {
		return Outcome{}, err
	}
	d := diffDeclaration(*existing, rules, decl)

	switch decl.Version.Compare(existing.Version) {
	case 0:
		if len(d.differences) > 0 {
			return Outcome{
				Kind:            OutcomeMismatch,
				PreviousVersion: existing.Version,
				LatestVersion:   existing.Version,
				Differences:     d.differences,
			}, nil
		}
		return Outcome{
			Kind:            OutcomeUpToDate,
			PreviousVersion: existing.Version,
			LatestVersion:   existing.Version,
		}, nil

	case -1:
		return Outcome{
			Kind:            OutcomeOutdated,
			PreviousVersion: existing.Version,
			LatestVersion:   existing.Version,
			Differences:     d.differences,
		}, nil
	}

	// Declared version is strictly higher: an upgrade attempt. Mismatch
	// severity always rejects; major severity rejects unless the major
	// component itself was bumped.
	rejected := d.has(SeverityMismatch) ||
		(decl.Version.Major == existing.Version.Major && d.has(SeverityMajor))
	if rejected {
		return Outcome{
			Kind:            OutcomeRejected,
			PreviousVersion: existing.Version,
			LatestVersion:   existing.Version,
			Differences:     d.differences,
		}, nil
	}

	if err := r.settings.Upgrade(ctx, existing.Name, existing.Version, d.update); err != nil {
		return Outcome{}, err
	}
	r.log.InfoContext(ctx, "setting upgraded",
		"setting", existing.Name,
		"from_version", existing.Version.String(),
		"to_version", decl.Version.String(),
		"differences", len(d.differences))
	return Outcome{
		Kind:            OutcomeUpgraded,
		PreviousVersion: existing.Version,
		LatestVersion:   decl.Version,
		Differences:     d.differences,
	}, nil
}

// resolve maps the declaration's name and alias to the setting it continues,
// enforcing the consistency between the two.
func (r *Reconciler) resolve(ctx context.Context, decl Declaration) (*Setting, error) {
	byName, err := r.settings.GetForDeclare(ctx, decl.Name)
	if err != nil {
		return nil, err
	}
	if decl.Alias == "" {
		return byName, nil
	}

	byAlias, err := r.settings.GetForDeclare(ctx, decl.Alias)
	if err != nil {
		return nil, err
	}
	switch {
	case byAlias == nil && byName == nil:
		return nil, nil
	case byAlias == nil:
		return nil, fmt.Errorf("%w: alias %q is unknown but %q names an existing setting",
			ErrAliasConflict, decl.Alias, decl.Name)
	case byName != nil && byName.Name != byAlias.Name:
		return nil, fmt.Errorf("%w: %q and alias %q resolve to different settings",
			ErrAliasConflict, decl.Name, decl.Alias)
	}
	return byAlias, nil
}

func (r *Reconciler) create(ctx context.Context, decl Declaration) (Outcome, error) {
	if decl.Version != InitialVersion {
		return Outcome{}, fmt.Errorf("%w: first declaration of %q must be version 1.0, got %s",
			ErrInvalidVersion, decl.Name, decl.Version)
	}

	setting := Setting{
		Name:                 decl.Name,
		Type:                 decl.Type,
		DefaultValue:         decl.DefaultValue,
		ConfigurableFeatures: decl.ConfigurableFeatures,
		Metadata:             decl.Metadata,
		Version:              InitialVersion,
	}
	if decl.Alias != "" {
		setting.Aliases = []string{decl.Alias}
	}
	if err := r.settings.Create(ctx, setting); err != nil {
		return Outcome{}, err
	}
	r.log.InfoContext(ctx, "setting created", "setting", decl.Name, "type", decl.Type.String())
	return Outcome{Kind: OutcomeCreated, LatestVersion: InitialVersion}, nil
}

// orderByRegistry validates the features against the registry and returns
// them deduplicated in registry order.
func orderByRegistry(features, registry []string) ([]string, error) {
	position := make(map[string]int, len(registry))
	for i, name := range registry {
		position[name] = i
	}

	var unknown []string
	seen := make(map[string]struct{}, len(features))
	ordered := make([]string, 0, len(features))
	for _, f := range features {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		if _, ok := position[f]; !ok {
			unknown = append(unknown, f)
			continue
		}
		ordered = append(ordered, f)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownContextFeatures, unknown)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return position[ordered[i]] < position[ordered[j]]
	})
	return ordered, nil
}
