package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/biocatchltd/heksher/modules/contextfeatures"
	"github.com/biocatchltd/heksher/modules/settings"
)

// RuleStore is the narrow persistence surface the rule service needs.
type RuleStore interface {
	Insert(ctx context.Context, rule Rule) (int64, error)
	Get(ctx context.Context, id int64) (*Rule, error)
	Delete(ctx context.Context, id int64) error
	// ByConditions finds the one rule of a setting with exactly the given
	// condition set, or (nil, nil).
	ByConditions(ctx context.Context, setting string, conditions map[string]string) (*Rule, error)
	UpdateValue(ctx context.Context, id int64, value any) error
	// ListForSettings loads all rules of the named settings keyed by setting.
	ListForSettings(ctx context.Context, names []string) (map[string][]Rule, error)
}

// SettingCatalog resolves and loads settings for validation.
type SettingCatalog interface {
	Get(ctx context.Context, name string) (*settings.Setting, error)
	Resolve(ctx context.Context, name string) (string, error)
	ListNames(ctx context.Context) ([]string, error)
}

// FeatureIndex exposes the registry ordering rules are sorted by.
type FeatureIndex interface {
	List(ctx context.Context) ([]contextfeatures.Feature, error)
}

// Service validates rule mutations and answers filtered queries.
type Service struct {
	store    RuleStore
	settings SettingCatalog
	features FeatureIndex
	log      *slog.Logger
}

func NewService(store RuleStore, catalog SettingCatalog, features FeatureIndex, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, settings: catalog, features: features, log: log}
}

// Add inserts a rule after validating it against its setting: conditions
// must be non-empty and drawn from the setting's configurable features, and
// the value must satisfy the setting's type at insertion time.
func (s *Service) Add(ctx context.Context, settingName string, conditions map[string]string, value any, metadata map[string]any) (int64, error) {
	setting, err := s.settings.Get(ctx, settingName)
	if err != nil {
		return 0, err
	}
	if len(conditions) == 0 {
		return 0, ErrEmptyConditions
	}
	configurable := make(map[string]struct{}, len(setting.ConfigurableFeatures))
	for _, f := range setting.ConfigurableFeatures {
		configurable[f] = struct{}{}
	}
	for feature := range conditions {
		if _, ok := configurable[feature]; !ok {
			return 0, fmt.Errorf("%w: %q on setting %q", ErrFeatureNotConfigurable, feature, setting.Name)
		}
	}
	if !setting.Type.Validate(value) {
		return 0, fmt.Errorf("%w: setting %q expects %s", ErrValueMismatch, setting.Name, setting.Type)
	}

	id, err := s.store.Insert(ctx, Rule{
		Setting:    setting.Name,
		Conditions: conditions,
		Value:      value,
		Metadata:   metadata,
	})
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "rule added", "rule", id, "setting", setting.Name)
	return id, nil
}

// Get loads one rule by id.
func (s *Service) Get(ctx context.Context, id int64) (*Rule, error) {
	return s.store.Get(ctx, id)
}

// Delete removes one rule by id.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Search finds the rule of a setting with exactly the given condition set.
func (s *Service) Search(ctx context.Context, settingName string, conditions map[string]string) (*Rule, error) {
	canonical, err := s.settings.Resolve(ctx, settingName)
	if err != nil {
		return nil, err
	}
	rule, err := s.store.ByConditions(ctx, canonical, conditions)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: no rule of %q with those conditions", ErrNotFound, canonical)
	}
	return rule, nil
}

// PatchValue replaces a rule's value after re-validating it against the
// current type of the owning setting.
func (s *Service) PatchValue(ctx context.Context, id int64, value any) error {
	rule, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	setting, err := s.settings.Get(ctx, rule.Setting)
	if err != nil {
		return err
	}
	if !setting.Type.Validate(value) {
		return fmt.Errorf("%w: setting %q expects %s", ErrValueMismatch, setting.Name, setting.Type)
	}
	return s.store.UpdateValue(ctx, id, value)
}

// QueryRequest selects the settings to query and the context filter to apply.
type QueryRequest struct {
	// Settings restricts the query to these names; nil means every setting.
	Settings        []string
	Filter          Options
	IncludeMetadata bool
}

// Condition is one rule condition, emitted in registry order.
type Condition struct {
	ContextFeature string `json:"context_feature"`
	Value          string `json:"value"`
}

// MatchedRule is one query hit.
type MatchedRule struct {
	ID         int64          `json:"id"`
	Value      any            `json:"value"`
	Conditions []Condition    `json:"conditions"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Query runs the rule query engine: it validates the requested settings and
// filter features, then returns every matching rule per setting, ordered by
// the context feature hierarchy. Settings without matches map to an empty
// list.
func (s *Service) Query(ctx context.Context, req QueryRequest) (map[string][]MatchedRule, error) {
	features, err := s.features.List(ctx)
	if err != nil {
		return nil, err
	}
	position := make(map[string]int, len(features))
	for _, f := range features {
		position[f.Name] = f.Index
	}

	if !req.Filter.All {
		var unknown []string
		for name := range req.Filter.Features {
			if _, ok := position[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return nil, fmt.Errorf("%w: %v", ErrUnknownFilterFeatures, unknown)
		}
	}

	var names []string
	if req.Settings == nil {
		if names, err = s.settings.ListNames(ctx); err != nil {
			return nil, err
		}
	} else {
		var unresolved []string
		seen := make(map[string]struct{}, len(req.Settings))
		for _, requested := range req.Settings {
			canonical, err := s.settings.Resolve(ctx, requested)
			if err != nil {
				if errors.Is(err, settings.ErrNotFound) {
					unresolved = append(unresolved, requested)
					continue
				}
				return nil, err
			}
			if _, dup := seen[canonical]; !dup {
				seen[canonical] = struct{}{}
				names = append(names, canonical)
			}
		}
		if len(unresolved) > 0 {
			sort.Strings(unresolved)
			return nil, fmt.Errorf("%w: %v", settings.ErrNotFound, unresolved)
		}
	}

	bySetting, err := s.store.ListForSettings(ctx, names)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]MatchedRule, len(names))
	for _, name := range names {
		candidates := bySetting[name]
		matched := make([]Rule, 0, len(candidates))
		for _, rule := range candidates {
			if req.Filter.Matches(rule.Conditions) {
				matched = append(matched, rule)
			}
		}
		sortByHierarchy(matched, position)

		out := make([]MatchedRule, len(matched))
		for i, rule := range matched {
			out[i] = MatchedRule{ID: rule.ID, Value: rule.Value, Conditions: orderedConditions(rule.Conditions, position)}
			if req.IncludeMetadata {
				out[i].Metadata = rule.Metadata
			}
		}
		result[name] = out
	}
	return result, nil
}

func orderedConditions(conditions map[string]string, position map[string]int) []Condition {
	features := make([]string, 0, len(conditions))
	for f := range conditions {
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool {
		return position[features[i]] < position[features[j]]
	})
	out := make([]Condition, len(features))
	for i, f := range features {
		out[i] = Condition{ContextFeature: f, Value: conditions[f]}
	}
	return out
}
