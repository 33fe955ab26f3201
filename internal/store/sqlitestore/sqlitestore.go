// Package sqlitestore keeps versions, their parent edges and branch pointers
// in an SQLite database. Version ids are random uuids.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sitevc.dev/sitevc/internal/commitgraph"
	sitevcerrors "sitevc.dev/sitevc/internal/errors"
	"sitevc.dev/sitevc/internal/model"
	"sitevc.dev/sitevc/internal/store"
)

// Store is a store.Store over database/sql
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path
func Open(path string, opts ...Option) (*Store, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	db, err := openDB(path, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// OpenMemory opens a private in-memory database
func OpenMemory() (*Store, error) {
	return Open(":memory:")
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// GetBundle reads the bundle of a version
func (s *Store) GetBundle(ctx context.Context, versionID string) (*model.Bundle, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT bundle FROM versions WHERE id = ?`, versionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sitevcerrors.NewVersionNotFoundError(versionID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle of %s: %w", versionID, err)
	}
	return model.UnmarshalBundle(data)
}

// GetVersion reads the metadata of a version
func (s *Store) GetVersion(ctx context.Context, versionID string) (*store.Version, error) {
	v := &store.Version{ID: versionID}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT message, author, created_at FROM versions WHERE id = ?`, versionID).
		Scan(&v.Message, &v.Author, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sitevcerrors.NewVersionNotFoundError(versionID, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version %s: %w", versionID, err)
	}
	v.CreatedAt = time.Unix(0, created).UTC()

	rows, err := s.db.QueryContext(ctx,
		`SELECT parent_id FROM version_parents WHERE version_id = ? ORDER BY position`, versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read parents of %s: %w", versionID, err)
	}
	defer rows.Close()
	v.Parents = []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		v.Parents = append(v.Parents, p)
	}
	return v, rows.Err()
}

// CommitBundle stores a new version in one transaction
func (s *Store) CommitBundle(ctx context.Context, parents []string, b *model.Bundle, meta store.CommitMeta) (string, error) {
	data, err := model.MarshalBundle(b)
	if err != nil {
		return "", fmt.Errorf("failed to marshal bundle: %w", err)
	}
	when := meta.Time
	if when.IsZero() {
		when = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range parents {
		if err := versionExists(ctx, tx, p); err != nil {
			return "", err
		}
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO versions (id, bundle, message, author, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, data, meta.Message, meta.Author, when.UnixNano()); err != nil {
		return "", fmt.Errorf("failed to insert version: %w", err)
	}
	for i, p := range parents {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO version_parents (version_id, position, parent_id) VALUES (?, ?, ?)`,
			id, i, p); err != nil {
			return "", fmt.Errorf("failed to insert parent edge: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit version: %w", err)
	}
	return id, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func versionExists(ctx context.Context, q queryer, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM versions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return sitevcerrors.NewVersionNotFoundError(id, nil)
	}
	return err
}

// ParentMap reads every version and its ordered parents
func (s *Store) ParentMap(ctx context.Context) (commitgraph.ParentMap, error) {
	parents := make(commitgraph.ParentMap)

	ids, err := s.db.QueryContext(ctx, `SELECT id FROM versions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	for ids.Next() {
		var id string
		if err := ids.Scan(&id); err != nil {
			ids.Close()
			return nil, err
		}
		parents[id] = []string{}
	}
	ids.Close()
	if err := ids.Err(); err != nil {
		return nil, err
	}

	edges, err := s.db.QueryContext(ctx,
		`SELECT version_id, parent_id FROM version_parents ORDER BY version_id, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list parent edges: %w", err)
	}
	defer edges.Close()
	for edges.Next() {
		var id, p string
		if err := edges.Scan(&id, &p); err != nil {
			return nil, err
		}
		parents[id] = append(parents[id], p)
	}
	return parents, edges.Err()
}

// GetBranch returns the version a branch points at
func (s *Store) GetBranch(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT version_id FROM branches WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sitevcerrors.NewBranchNotFoundError(name)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read branch %s: %w", name, err)
	}
	return id, nil
}

// SetBranch creates (expected == "") or moves a branch with a conditional write
func (s *Store) SetBranch(ctx context.Context, name, versionID, expected string) error {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return fmt.Errorf("invalid branch name %q", name)
	}
	if err := versionExists(ctx, s.db, versionID); err != nil {
		return err
	}
	now := time.Now().UnixNano()

	if expected == "" {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO branches (name, version_id, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(name) DO NOTHING`, name, versionID, now)
		if err != nil {
			return fmt.Errorf("failed to create branch %s: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", sitevcerrors.ErrBranchExists, name)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE branches SET version_id = ?, updated_at = ? WHERE name = ? AND version_id = ?`,
		versionID, now, name, expected)
	if err != nil {
		return fmt.Errorf("failed to update branch %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	actual, err := s.GetBranch(ctx, name)
	if err != nil {
		return err
	}
	return sitevcerrors.NewStaleBranchHeadError(name, expected, actual)
}

// DeleteBranch removes a branch pointer
func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM branches WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete branch %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sitevcerrors.NewBranchNotFoundError(name)
	}
	return nil
}

// ListBranches returns every branch and its head
func (s *Store) ListBranches(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, version_id FROM branches`)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, id string
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, rows.Err()
}
