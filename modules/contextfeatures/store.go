package contextfeatures

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/biocatchltd/heksher/pkg/pg"
)

// registryLockKey is the advisory lock taken by every registry mutation.
// Serializing mutations keeps the in-use check during delete and the index
// compaction safe under concurrent requests.
const registryLockKey int64 = 0x68656b_72656779 // "hek regy"

// Store is the Postgres-backed context feature registry.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// List returns all registry entries ordered by index.
func (s *Store) List(ctx context.Context) ([]Feature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, "index" FROM context_features ORDER BY "index"`)
	if err != nil {
		return nil, fmt.Errorf("list context features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.Name, &f.Index); err != nil {
			return nil, fmt.Errorf("scan context feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

// Names returns the registry names ordered by index.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	features, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names, nil
}

// Index returns the position of one feature, or ErrNotFound.
func (s *Store) Index(ctx context.Context, name string) (int, error) {
	var index int
	err := s.pool.QueryRow(ctx,
		`SELECT "index" FROM context_features WHERE name = $1`, name).Scan(&index)
	if pg.IsNotFoundError(err) {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("get context feature index: %w", err)
	}
	return index, nil
}

// Add appends a feature at the next free index and returns that index.
// Adding an existing name fails with ErrAlreadyExists.
func (s *Store) Add(ctx context.Context, name string) (int, error) {
	var index int
	err := s.mutate(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO context_features (name, "index")
			 SELECT $1, COALESCE(MAX("index") + 1, 0) FROM context_features
			 RETURNING "index"`, name).Scan(&index)
		if pg.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %q", ErrAlreadyExists, name)
		}
		if err != nil {
			return fmt.Errorf("add context feature: %w", err)
		}
		return nil
	})
	return index, err
}

// Delete removes a feature and compacts the indices above it. A feature that
// any setting lists among its configurable features fails with ErrInUse.
func (s *Store) Delete(ctx context.Context, name string) error {
	return s.mutate(ctx, func(tx pgx.Tx) error {
		var inUse bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM setting_configurable_features WHERE context_feature = $1)`,
			name).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("check context feature usage: %w", err)
		}
		if inUse {
			return fmt.Errorf("%w: %q", ErrInUse, name)
		}

		var removed int
		err = tx.QueryRow(ctx,
			`DELETE FROM context_features WHERE name = $1 RETURNING "index"`, name).Scan(&removed)
		if pg.IsNotFoundError(err) {
			return fmt.Errorf("%w: %q", ErrNotFound, name)
		}
		if err != nil {
			return fmt.Errorf("delete context feature: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE context_features SET "index" = "index" - 1 WHERE "index" > $1`, removed)
		if err != nil {
			return fmt.Errorf("compact context feature indices: %w", err)
		}
		return nil
	})
}

// Move relocates name to sit immediately before or after anchor, shifting
// only the entries between the two positions.
func (s *Store) Move(ctx context.Context, name, anchor string, before bool) error {
	return s.mutate(ctx, func(tx pgx.Tx) error {
		current, err := listTx(ctx, tx)
		if err != nil {
			return err
		}
		changed, err := planMove(current, name, anchor, before)
		if err != nil {
			return err
		}
		return applyIndexUpdates(ctx, tx, changed)
	})
}

// ReconcileStartup brings the persisted registry in line with the ordering
// the deployment expects. See the package documentation for the contract.
func (s *Store) ReconcileStartup(ctx context.Context, expected []string) error {
	return s.mutate(ctx, func(tx pgx.Tx) error {
		persisted, err := listTx(ctx, tx)
		if err != nil {
			return err
		}
		inserts, updates, err := planStartup(persisted, expected)
		if err != nil {
			return err
		}
		for _, f := range inserts {
			if _, err := tx.Exec(ctx,
				`INSERT INTO context_features (name, "index") VALUES ($1, $2)`,
				f.Name, f.Index); err != nil {
				return fmt.Errorf("seed context feature %q: %w", f.Name, err)
			}
		}
		return applyIndexUpdates(ctx, tx, updates)
	})
}

// mutate runs fn inside a transaction holding the registry advisory lock.
func (s *Store) mutate(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registry transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, registryLockKey); err != nil {
		return fmt.Errorf("acquire registry lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit registry transaction: %w", err)
	}
	return nil
}

func listTx(ctx context.Context, tx pgx.Tx) ([]Feature, error) {
	rows, err := tx.Query(ctx,
		`SELECT name, "index" FROM context_features ORDER BY "index"`)
	if err != nil {
		return nil, fmt.Errorf("list context features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.Name, &f.Index); err != nil {
			return nil, fmt.Errorf("scan context feature: %w", err)
		}
		features = append(features, f)
	}
	return features, rows.Err()
}

func applyIndexUpdates(ctx context.Context, tx pgx.Tx, updates []Feature) error {
	for _, f := range updates {
		if _, err := tx.Exec(ctx,
			`UPDATE context_features SET "index" = $2 WHERE name = $1`,
			f.Name, f.Index); err != nil {
			return fmt.Errorf("update index of context feature %q: %w", f.Name, err)
		}
	}
	return nil
}

// errors.Is helper used by the HTTP layer to keep registry faults distinct
// from storage faults.
func IsRegistryError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrInUse) ||
		errors.Is(err, ErrConfigurationMismatch)
}
