package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biocatchltd/heksher/pkg/pg"
	"github.com/biocatchltd/heksher/pkg/settingtype"
)

// Store is the Postgres-backed setting store. Every canonical setting name
// also owns a row in setting_aliases, so one unique constraint enforces that
// a name is either a canonical name or an alias of exactly one setting,
// never both.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Resolve maps a canonical name or alias to the canonical setting name.
func (s *Store) Resolve(ctx context.Context, name string) (string, error) {
	var canonical string
	err := s.pool.QueryRow(ctx,
		`SELECT setting FROM setting_aliases WHERE alias = $1`, name).Scan(&canonical)
	if pg.IsNotFoundError(err) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("resolve setting %q: %w", name, err)
	}
	return canonical, nil
}

// GetForDeclare resolves name to its full setting, or (nil, nil) when no
// setting claims the name.
func (s *Store) GetForDeclare(ctx context.Context, name string) (*Setting, error) {
	setting, err := s.Get(ctx, name)
	if err != nil {
		if pgIsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return setting, nil
}

// Get loads one setting by canonical name or alias, including configurable
// features (in registry order), aliases and metadata.
func (s *Store) Get(ctx context.Context, name string) (*Setting, error) {
	setting := &Setting{}
	var typeText string
	err := s.pool.QueryRow(ctx,
		`SELECT s.name, s.type, s.default_value, s.version_major, s.version_minor,
		        s.created_at, s.updated_at
		 FROM settings s
		 JOIN setting_aliases a ON a.setting = s.name
		 WHERE a.alias = $1`, name).Scan(
		&setting.Name, &typeText, &setting.DefaultValue,
		&setting.Version.Major, &setting.Version.Minor,
		&setting.CreatedAt, &setting.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get setting %q: %w", name, err)
	}
	if setting.Type, err = settingtype.Parse(typeText); err != nil {
		return nil, fmt.Errorf("stored type of setting %q: %w", setting.Name, err)
	}
	if err := s.loadAssociations(ctx, setting); err != nil {
		return nil, err
	}
	return setting, nil
}

// ListNames returns every canonical setting name ordered alphabetically.
func (s *Store) ListNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM settings ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list setting names: %w", err)
	}
	return scanStrings(rows)
}

// List returns every setting ordered by name.
func (s *Store) List(ctx context.Context) ([]Setting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.name, s.type, s.default_value, s.version_major, s.version_minor,
		        s.created_at, s.updated_at
		 FROM settings s ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var setting Setting
		var typeText string
		if err := rows.Scan(&setting.Name, &typeText, &setting.DefaultValue,
			&setting.Version.Major, &setting.Version.Minor,
			&setting.CreatedAt, &setting.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if setting.Type, err = settingtype.Parse(typeText); err != nil {
			return nil, fmt.Errorf("stored type of setting %q: %w", setting.Name, err)
		}
		out = append(out, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadAssociations(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) loadAssociations(ctx context.Context, setting *Setting) error {
	rows, err := s.pool.Query(ctx,
		`SELECT cf.context_feature
		 FROM setting_configurable_features cf
		 JOIN context_features f ON f.name = cf.context_feature
		 WHERE cf.setting = $1
		 ORDER BY f."index"`, setting.Name)
	if err != nil {
		return fmt.Errorf("load configurable features of %q: %w", setting.Name, err)
	}
	setting.ConfigurableFeatures, err = scanStrings(rows)
	if err != nil {
		return err
	}

	rows, err = s.pool.Query(ctx,
		`SELECT alias FROM setting_aliases WHERE setting = $1 AND alias <> $1 ORDER BY alias`,
		setting.Name)
	if err != nil {
		return fmt.Errorf("load aliases of %q: %w", setting.Name, err)
	}
	setting.Aliases, err = scanStrings(rows)
	if err != nil {
		return err
	}

	mdRows, err := s.pool.Query(ctx,
		`SELECT key, value FROM setting_metadata WHERE setting = $1`, setting.Name)
	if err != nil {
		return fmt.Errorf("load metadata of %q: %w", setting.Name, err)
	}
	defer mdRows.Close()
	metadata := map[string]any{}
	for mdRows.Next() {
		var key string
		var value any
		if err := mdRows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan metadata of %q: %w", setting.Name, err)
		}
		metadata[key] = value
	}
	if len(metadata) > 0 {
		setting.Metadata = metadata
	}
	return mdRows.Err()
}

// Create persists a new setting with its aliases, configurable features and
// metadata in one transaction.
func (s *Store) Create(ctx context.Context, setting Setting) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO settings (name, type, default_value, version_major, version_minor)
			 VALUES ($1, $2, $3, $4, $5)`,
			setting.Name, setting.Type.String(), jsonParam(setting.DefaultValue),
			setting.Version.Major, setting.Version.Minor)
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %q", ErrAliasConflict, setting.Name)
		}
		if err != nil {
			return fmt.Errorf("insert setting %q: %w", setting.Name, err)
		}

		for _, alias := range append([]string{setting.Name}, setting.Aliases...) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO setting_aliases (alias, setting) VALUES ($1, $2)`,
				alias, setting.Name); err != nil {
				if pg.IsDuplicateKeyError(err) {
					return fmt.Errorf("%w: %q", ErrAliasConflict, alias)
				}
				return fmt.Errorf("insert alias %q: %w", alias, err)
			}
		}

		if err := replaceConfigurableFeatures(ctx, tx, setting.Name, setting.ConfigurableFeatures); err != nil {
			return err
		}
		return replaceMetadataTx(ctx, tx, setting.Name, setting.Metadata)
	})
}

// Upgrade applies an accepted declaration. The expected version guards
// against a concurrent declaration racing between diff and apply.
func (s *Store) Upgrade(ctx context.Context, name string, expected Version, update Update) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE settings SET version_major = $2, version_minor = $3, updated_at = now()
			 WHERE name = $1 AND version_major = $4 AND version_minor = $5`,
			name, update.Version.Major, update.Version.Minor, expected.Major, expected.Minor)
		if err != nil {
			return fmt.Errorf("bump version of %q: %w", name, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %q", ErrConcurrentUpdate, name)
		}

		if update.Type != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE settings SET type = $2 WHERE name = $1`,
				name, update.Type.String()); err != nil {
				return fmt.Errorf("update type of %q: %w", name, err)
			}
		}
		if update.DefaultValue != nil {
			if _, err := tx.Exec(ctx,
				`UPDATE settings SET default_value = $2 WHERE name = $1`,
				name, jsonParam(*update.DefaultValue)); err != nil {
				return fmt.Errorf("update default of %q: %w", name, err)
			}
		}
		if update.ConfigurableFeatures != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM setting_configurable_features WHERE setting = $1`, name); err != nil {
				return fmt.Errorf("clear configurable features of %q: %w", name, err)
			}
			if err := replaceConfigurableFeatures(ctx, tx, name, update.ConfigurableFeatures); err != nil {
				return err
			}
		}
		if update.Metadata != nil {
			if _, err := tx.Exec(ctx,
				`DELETE FROM setting_metadata WHERE setting = $1`, name); err != nil {
				return fmt.Errorf("clear metadata of %q: %w", name, err)
			}
			if err := replaceMetadataTx(ctx, tx, name, update.Metadata); err != nil {
				return err
			}
		}

		if update.RenameTo != "" && update.RenameTo != name {
			// setting_aliases and the rule tables follow via ON UPDATE
			// CASCADE; the old canonical name stays behind as an alias.
			if _, err := tx.Exec(ctx,
				`UPDATE settings SET name = $2 WHERE name = $1`, name, update.RenameTo); err != nil {
				if pg.IsDuplicateKeyError(err) {
					return fmt.Errorf("%w: %q", ErrAliasConflict, update.RenameTo)
				}
				return fmt.Errorf("rename %q to %q: %w", name, update.RenameTo, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO setting_aliases (alias, setting) VALUES ($1, $1)`,
				update.RenameTo); err != nil {
				if pg.IsDuplicateKeyError(err) {
					return fmt.Errorf("%w: %q", ErrAliasConflict, update.RenameTo)
				}
				return fmt.Errorf("register renamed alias %q: %w", update.RenameTo, err)
			}
		}
		return nil
	})
}

// Delete removes a setting; rules, aliases, configurable features and
// metadata follow via ON DELETE CASCADE.
func (s *Store) Delete(ctx context.Context, name string) error {
	canonical, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM settings WHERE name = $1`, canonical)
	if err != nil {
		return fmt.Errorf("delete setting %q: %w", canonical, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// ReplaceMetadata swaps the whole metadata map of a setting.
func (s *Store) ReplaceMetadata(ctx context.Context, name string, metadata map[string]any) error {
	canonical, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM setting_metadata WHERE setting = $1`, canonical); err != nil {
			return fmt.Errorf("clear metadata of %q: %w", canonical, err)
		}
		return replaceMetadataTx(ctx, tx, canonical, metadata)
	})
}

// SetMetadataKey upserts one metadata entry.
func (s *Store) SetMetadataKey(ctx context.Context, name, key string, value any) error {
	canonical, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO setting_metadata (setting, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (setting, key) DO UPDATE SET value = EXCLUDED.value`,
		canonical, key, jsonParam(value))
	if err != nil {
		return fmt.Errorf("set metadata %q of %q: %w", key, canonical, err)
	}
	return nil
}

// DeleteMetadataKey drops one metadata entry; a missing key is a no-op.
func (s *Store) DeleteMetadataKey(ctx context.Context, name, key string) error {
	canonical, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`DELETE FROM setting_metadata WHERE setting = $1 AND key = $2`, canonical, key)
	if err != nil {
		return fmt.Errorf("delete metadata %q of %q: %w", key, canonical, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settings transaction: %w", err)
	}
	return nil
}

func replaceConfigurableFeatures(ctx context.Context, tx pgx.Tx, name string, features []string) error {
	for _, feature := range features {
		if _, err := tx.Exec(ctx,
			`INSERT INTO setting_configurable_features (setting, context_feature) VALUES ($1, $2)`,
			name, feature); err != nil {
			if pg.IsForeignKeyViolationError(err) {
				return fmt.Errorf("%w: %q", ErrUnknownContextFeatures, feature)
			}
			return fmt.Errorf("insert configurable feature %q of %q: %w", feature, name, err)
		}
	}
	return nil
}

func replaceMetadataTx(ctx context.Context, tx pgx.Tx, name string, metadata map[string]any) error {
	for key, value := range metadata {
		if _, err := tx.Exec(ctx,
			`INSERT INTO setting_metadata (setting, key, value) VALUES ($1, $2, $3)`,
			name, key, jsonParam(value)); err != nil {
			return fmt.Errorf("insert metadata %q of %q: %w", key, name, err)
		}
	}
	return nil
}

// jsonParam passes a decoded-JSON value as a jsonb parameter, mapping Go nil
// to SQL NULL rather than the JSON null literal.
func jsonParam(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	return string(b)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan string column: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func pgIsNotFound(err error) bool {
	return err != nil && (pg.IsNotFoundError(err) || errors.Is(err, ErrNotFound))
}
