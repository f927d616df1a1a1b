package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biocatchltd/heksher/modules/settings"
	"github.com/biocatchltd/heksher/pkg/pg"
)

// Store is the Postgres-backed rule store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert persists a rule with its conditions and metadata. Insertion takes a
// per-setting advisory lock so the unique-condition-set check cannot race
// with a concurrent insert of the same set.
func (s *Store) Insert(ctx context.Context, rule Rule) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, rule.Setting); err != nil {
			return fmt.Errorf("acquire rule lock for %q: %w", rule.Setting, err)
		}

		existing, err := byConditionsTx(ctx, tx, rule.Setting, rule.Conditions)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: rule %d of %q", ErrConditionConflict, existing.ID, rule.Setting)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO rules (setting, value) VALUES ($1, $2) RETURNING id`,
			rule.Setting, jsonParam(rule.Value)).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert rule for %q: %w", rule.Setting, err)
		}

		for feature, value := range rule.Conditions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rule_conditions (rule, context_feature, feature_value) VALUES ($1, $2, $3)`,
				id, feature, value); err != nil {
				return fmt.Errorf("insert condition %q of rule %d: %w", feature, id, err)
			}
		}
		for key, value := range rule.Metadata {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rule_metadata (rule, key, value) VALUES ($1, $2, $3)`,
				id, key, jsonParam(value)); err != nil {
				return fmt.Errorf("insert metadata %q of rule %d: %w", key, id, err)
			}
		}
		return nil
	})
	return id, err
}

// Get loads one rule with its conditions and metadata.
func (s *Store) Get(ctx context.Context, id int64) (*Rule, error) {
	rule := &Rule{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT setting, value FROM rules WHERE id = $1`, id).Scan(&rule.Setting, &rule.Value)
	if pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}

	rule.Conditions = map[string]string{}
	rows, err := s.pool.Query(ctx,
		`SELECT context_feature, feature_value FROM rule_conditions WHERE rule = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load conditions of rule %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var feature, value string
		if err := rows.Scan(&feature, &value); err != nil {
			return nil, fmt.Errorf("scan condition of rule %d: %w", id, err)
		}
		rule.Conditions[feature] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metadata, err := s.loadMetadata(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Metadata = metadata
	return rule, nil
}

// Delete removes one rule; conditions and metadata cascade.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// ByConditions finds the rule of a setting with exactly the given condition
// set, or (nil, nil).
func (s *Store) ByConditions(ctx context.Context, setting string, conditions map[string]string) (*Rule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rule lookup: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return byConditionsTx(ctx, tx, setting, conditions)
}

// UpdateValue replaces a rule's value in place.
func (s *Store) UpdateValue(ctx context.Context, id int64, value any) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE rules SET value = $2 WHERE id = $1`, id, jsonParam(value))
	if err != nil {
		return fmt.Errorf("update value of rule %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// ListForSettings loads every rule of the named settings, keyed by setting.
func (s *Store) ListForSettings(ctx context.Context, names []string) (map[string][]Rule, error) {
	result := make(map[string][]Rule, len(names))
	if len(names) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, setting, value FROM rules WHERE setting = ANY($1) ORDER BY id`, names)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	byID := map[int64]*Rule{}
	var order []int64
	for rows.Next() {
		var rule Rule
		if err := rows.Scan(&rule.ID, &rule.Setting, &rule.Value); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.Conditions = map[string]string{}
		byID[rule.ID] = &rule
		order = append(order, rule.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	condRows, err := s.pool.Query(ctx,
		`SELECT c.rule, c.context_feature, c.feature_value
		 FROM rule_conditions c JOIN rules r ON r.id = c.rule
		 WHERE r.setting = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("list rule conditions: %w", err)
	}
	defer condRows.Close()
	for condRows.Next() {
		var id int64
		var feature, value string
		if err := condRows.Scan(&id, &feature, &value); err != nil {
			return nil, fmt.Errorf("scan rule condition: %w", err)
		}
		byID[id].Conditions[feature] = value
	}
	if err := condRows.Err(); err != nil {
		return nil, err
	}

	mdRows, err := s.pool.Query(ctx,
		`SELECT m.rule, m.key, m.value
		 FROM rule_metadata m JOIN rules r ON r.id = m.rule
		 WHERE r.setting = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("list rule metadata: %w", err)
	}
	defer mdRows.Close()
	for mdRows.Next() {
		var id int64
		var key string
		var value any
		if err := mdRows.Scan(&id, &key, &value); err != nil {
			return nil, fmt.Errorf("scan rule metadata: %w", err)
		}
		if byID[id].Metadata == nil {
			byID[id].Metadata = map[string]any{}
		}
		byID[id].Metadata[key] = value
	}
	if err := mdRows.Err(); err != nil {
		return nil, err
	}

	for _, id := range order {
		rule := byID[id]
		result[rule.Setting] = append(result[rule.Setting], *rule)
	}
	return result, nil
}

// SettingRuleInfo supplies the reconciliation engine with the rule slices it
// needs to classify a declaration against existing rules.
func (s *Store) SettingRuleInfo(ctx context.Context, setting string) ([]settings.RuleInfo, error) {
	bySetting, err := s.ListForSettings(ctx, []string{setting})
	if err != nil {
		return nil, err
	}
	list := bySetting[setting]
	infos := make([]settings.RuleInfo, len(list))
	for i, rule := range list {
		features := make([]string, 0, len(rule.Conditions))
		for f := range rule.Conditions {
			features = append(features, f)
		}
		infos[i] = settings.RuleInfo{ID: rule.ID, ConditionFeatures: features, Value: rule.Value}
	}
	return infos, nil
}

// ReplaceMetadata swaps a rule's whole metadata map.
func (s *Store) ReplaceMetadata(ctx context.Context, id int64, metadata map[string]any) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.ensureExistsTx(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM rule_metadata WHERE rule = $1`, id); err != nil {
			return fmt.Errorf("clear metadata of rule %d: %w", id, err)
		}
		for key, value := range metadata {
			if _, err := tx.Exec(ctx,
				`INSERT INTO rule_metadata (rule, key, value) VALUES ($1, $2, $3)`,
				id, key, jsonParam(value)); err != nil {
				return fmt.Errorf("insert metadata %q of rule %d: %w", key, id, err)
			}
		}
		return nil
	})
}

// SetMetadataKey upserts one metadata entry of a rule.
func (s *Store) SetMetadataKey(ctx context.Context, id int64, key string, value any) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.ensureExistsTx(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO rule_metadata (rule, key, value) VALUES ($1, $2, $3)
			 ON CONFLICT (rule, key) DO UPDATE SET value = EXCLUDED.value`,
			id, key, jsonParam(value))
		if err != nil {
			return fmt.Errorf("set metadata %q of rule %d: %w", key, id, err)
		}
		return nil
	})
}

// DeleteMetadataKey drops one metadata entry; a missing key is a no-op.
func (s *Store) DeleteMetadataKey(ctx context.Context, id int64, key string) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.ensureExistsTx(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM rule_metadata WHERE rule = $1 AND key = $2`, id, key)
		if err != nil {
			return fmt.Errorf("delete metadata %q of rule %d: %w", key, id, err)
		}
		return nil
	})
}

func (s *Store) ensureExistsTx(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rules WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check rule %d: %w", id, err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

func (s *Store) loadMetadata(ctx context.Context, id int64) (map[string]any, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM rule_metadata WHERE rule = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("load metadata of rule %d: %w", id, err)
	}
	defer rows.Close()
	var metadata map[string]any
	for rows.Next() {
		var key string
		var value any
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan metadata of rule %d: %w", id, err)
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata[key] = value
	}
	return metadata, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin rules transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit rules transaction: %w", err)
	}
	return nil
}

func byConditionsTx(ctx context.Context, tx pgx.Tx, setting string, conditions map[string]string) (*Rule, error) {
	rows, err := tx.Query(ctx,
		`SELECT r.id, r.value, c.context_feature, c.feature_value
		 FROM rules r JOIN rule_conditions c ON c.rule = r.id
		 WHERE r.setting = $1`, setting)
	if err != nil {
		return nil, fmt.Errorf("search rules of %q: %w", setting, err)
	}
	defer rows.Close()

	type candidate struct {
		value      any
		conditions map[string]string
	}
	candidates := map[int64]*candidate{}
	for rows.Next() {
		var id int64
		var value any
		var feature, featureValue string
		if err := rows.Scan(&id, &value, &feature, &featureValue); err != nil {
			return nil, fmt.Errorf("scan rule of %q: %w", setting, err)
		}
		if candidates[id] == nil {
			candidates[id] = &candidate{value: value, conditions: map[string]string{}}
		}
		candidates[id].conditions[feature] = featureValue
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for id, c := range candidates {
		if maps.Equal(c.conditions, conditions) {
			return &Rule{ID: id, Setting: setting, Value: c.value, Conditions: c.conditions}, nil
		}
	}
	return nil, nil
}

// jsonParam renders a decoded-JSON value as a jsonb parameter. Rule values
// are never absent, so Go nil maps to the JSON null literal rather than SQL
// NULL.
func jsonParam(v any) any {
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}
