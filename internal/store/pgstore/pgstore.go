// Package pgstore persists each entity as one row in Postgres. Core indexed
// fields are projected into columns for filtering; the full field bag and
// the version metadata live in JSONB columns of the same logical shape the
// file backend inlines. Updates read the target row with a row-level
// exclusive lock so two concurrent updates to the same id can never compute
// a bump from the same snapshot.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store"
)

const uniqueViolation = "23505"

// Store implements store.EntityStore over a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	schema *domain.Schema
	guard  *store.Guard
	now    func() time.Time
}

// Option customizes a relational store.
type Option func(*Store)

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGuardWait bounds how long mutations wait for the per-id guard.
func WithGuardWait(maxWait time.Duration) Option {
	return func(s *Store) {
		s.guard = store.NewGuard(maxWait)
	}
}

// New creates a relational store for one collection.
func New(pool *pgxpool.Pool, schema *domain.Schema, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		schema: schema,
		guard:  store.NewGuard(0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts the entity in a single-statement transaction; the unique
// constraint on (collection, id) enforces conflict semantics.
func (s *Store) Create(ctx context.Context, id string, fields map[string]any, actor string) (domain.Entity, error) {
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	defer release()

	entity, err := store.NewEntity(s.schema, id, fields, actor, s.now())
	if err != nil {
		return domain.Entity{}, err
	}

	fieldsJSON, metaJSON, err := encodeEntity(entity)
	if err != nil {
		return domain.Entity{}, err
	}

	name, category, owner, tier, tags := indexedColumns(entity)
	_, err = s.pool.Exec(ctx, `
		INSERT INTO catalog_entities (collection, id, name, category, owner, tier, tags, fields, version_meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.schema.Collection(), entity.ID, name, category, owner, tier, tags, fieldsJSON, metaJSON,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Entity{}, fmt.Errorf("create %s %q: %w", s.schema.Collection(), id, domain.ErrConflict)
		}
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return entity, nil
}

// Get reads the row outside any transaction or guard.
func (s *Store) Get(ctx context.Context, id string) (domain.Entity, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT fields, version_meta FROM catalog_entities
		WHERE collection = $1 AND id = $2`,
		s.schema.Collection(), id,
	)
	entity, err := s.scanEntity(id, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("get %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
		}
		return domain.Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// Update locks the row with SELECT ... FOR UPDATE, runs the shared pipeline
// against the locked snapshot and writes the merged entity back. The second
// of two concurrent updates observes the first's committed result before
// computing its own bump.
func (s *Store) Update(ctx context.Context, id string, partial map[string]any, actor string) (domain.Entity, bool, error) {
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return domain.Entity{}, false, err
	}
	defer release()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT fields, version_meta FROM catalog_entities
		WHERE collection = $1 AND id = $2
		FOR UPDATE`,
		s.schema.Collection(), id,
	)
	current, err := s.scanEntity(id, row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, false, fmt.Errorf("update %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
		}
		return domain.Entity{}, false, fmt.Errorf("failed to read entity for update: %w", err)
	}

	updated, changed, err := store.ApplyUpdate(s.schema, current, partial, actor, s.now())
	if err != nil {
		return domain.Entity{}, false, err
	}
	if !changed {
		return updated, false, nil
	}

	// An operation whose caller already gave up must not be committed.
	if err := ctx.Err(); err != nil {
		return domain.Entity{}, false, fmt.Errorf("%w before commit: %v", domain.ErrGuardTimeout, err)
	}

	fieldsJSON, metaJSON, err := encodeEntity(updated)
	if err != nil {
		return domain.Entity{}, false, err
	}
	name, category, owner, tier, tags := indexedColumns(updated)
	if _, err := tx.Exec(ctx, `
		UPDATE catalog_entities
		SET name = $3, category = $4, owner = $5, tier = $6, tags = $7, fields = $8, version_meta = $9
		WHERE collection = $1 AND id = $2`,
		s.schema.Collection(), id, name, category, owner, tier, tags, fieldsJSON, metaJSON,
	); err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to write update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Entity{}, false, fmt.Errorf("failed to commit update: %w", err)
	}
	return updated, true, nil
}

// Delete removes the row; the entity's history goes with it.
func (s *Store) Delete(ctx context.Context, id string, _ string) error {
	release, err := s.guard.Acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM catalog_entities WHERE collection = $1 AND id = $2`,
		s.schema.Collection(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
	}
	return nil
}

// List compiles the filter to SQL over the indexed columns and yields rows
// lazily. Each range re-executes the query, so the sequence is restartable.
func (s *Store) List(ctx context.Context, filter domain.Filter) iter.Seq2[domain.Entity, error] {
	query, args := s.listQuery(filter)
	return func(yield func(domain.Entity, error) bool) {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			yield(domain.Entity{}, fmt.Errorf("failed to list entities: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			var fieldsJSON, metaJSON []byte
			if err := rows.Scan(&id, &fieldsJSON, &metaJSON); err != nil {
				yield(domain.Entity{}, fmt.Errorf("failed to scan entity row: %w", err))
				return
			}
			entity, err := decodeEntity(s.schema.Collection(), id, fieldsJSON, metaJSON)
			if err != nil {
				yield(domain.Entity{}, err)
				return
			}
			if !yield(entity, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(domain.Entity{}, fmt.Errorf("failed to iterate entities: %w", err))
		}
	}
}

// Restore upserts entities with their metadata preserved verbatim inside one
// transaction. Used by the import path.
func (s *Store) Restore(ctx context.Context, entities []domain.Entity) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin restore: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, entity := range entities {
		entity.Collection = s.schema.Collection()
		fieldsJSON, metaJSON, err := encodeEntity(entity)
		if err != nil {
			return err
		}
		name, category, owner, tier, tags := indexedColumns(entity)
		if _, err := tx.Exec(ctx, `
			INSERT INTO catalog_entities (collection, id, name, category, owner, tier, tags, fields, version_meta)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (collection, id) DO UPDATE
			SET name = EXCLUDED.name, category = EXCLUDED.category, owner = EXCLUDED.owner,
			    tier = EXCLUDED.tier, tags = EXCLUDED.tags, fields = EXCLUDED.fields,
			    version_meta = EXCLUDED.version_meta`,
			s.schema.Collection(), entity.ID, name, category, owner, tier, tags, fieldsJSON, metaJSON,
		); err != nil {
			return fmt.Errorf("failed to restore entity %q: %w", entity.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit restore: %w", err)
	}
	return nil
}

func (s *Store) listQuery(filter domain.Filter) (string, []any) {
	conds := []string{"collection = $1"}
	args := []any{s.schema.Collection()}

	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Owner != "" {
		add("owner = $%d", filter.Owner)
	}
	if filter.Tier != "" {
		add("tier = $%d", filter.Tier)
	}
	if filter.Tag != "" {
		add("$%d = ANY(tags)", filter.Tag)
	}
	if filter.NameContains != "" {
		add("name ILIKE '%%' || $%d || '%%'", filter.NameContains)
	}

	query := "SELECT id, fields, version_meta FROM catalog_entities WHERE " +
		strings.Join(conds, " AND ") + " ORDER BY id"
	return query, args
}

func (s *Store) scanEntity(id string, row pgx.Row) (domain.Entity, error) {
	var fieldsJSON, metaJSON []byte
	if err := row.Scan(&fieldsJSON, &metaJSON); err != nil {
		return domain.Entity{}, err
	}
	return decodeEntity(s.schema.Collection(), id, fieldsJSON, metaJSON)
}

func encodeEntity(entity domain.Entity) (fieldsJSON, metaJSON []byte, err error) {
	fieldsJSON, err = json.Marshal(entity.Fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal fields: %w", err)
	}
	metaJSON, err = entity.Meta.MarshalMeta()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal version metadata: %w", err)
	}
	return fieldsJSON, metaJSON, nil
}

func decodeEntity(collection, id string, fieldsJSON, metaJSON []byte) (domain.Entity, error) {
	var fields map[string]any
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode fields for entity %s: %w", id, err)
	}
	meta, err := domain.UnmarshalMeta(metaJSON)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to decode version metadata for entity %s: %w", id, err)
	}
	return domain.Entity{
		ID:         id,
		Collection: collection,
		Fields:     fields,
		Meta:       meta,
	}, nil
}

func indexedColumns(entity domain.Entity) (name, category, owner, tier string, tags []string) {
	name = domain.StringField(entity, "name")
	category = domain.StringField(entity, "category")
	owner = domain.StringField(entity, "owner")
	tier = domain.StringField(entity, "tier")
	tags = domain.StringListField(entity, "tags")
	if tags == nil {
		tags = []string{}
	}
	return name, category, owner, tier, tags
}
