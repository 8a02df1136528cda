// Package sqlite provides a SQLite-backed RecordStore.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/erenbertr/chatrelay/internal/storage"
)

// Store is a SQLite implementation of storage.RecordStore. Records are kept
// as JSON documents in a single table keyed by (collection, id), which keeps
// the store schema-free the way the relay consumes it.
type Store struct {
	db *sql.DB
}

var _ storage.RecordStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection)`,
		`CREATE INDEX IF NOT EXISTS idx_records_created ON records(collection, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(ctx context.Context, collection string, rec storage.Record) (string, error) {
	id := rec.ID()
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	createdAt := rec.String("created_at")
	if createdAt == "" {
		createdAt = now
	}
	updatedAt := rec.String("updated_at")
	if updatedAt == "" {
		updatedAt = now
	}

	stored := make(storage.Record, len(rec)+3)
	for k, v := range rec {
		stored[k] = v
	}
	stored["id"] = id
	stored["created_at"] = createdAt
	stored["updated_at"] = updatedAt

	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (collection, id, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		collection, id, string(data), createdAt, updatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

func (s *Store) FindOne(ctx context.Context, collection string, q storage.Query) (storage.Record, error) {
	q.Limit = 1
	recs, err := s.FindMany(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, q storage.Query) ([]storage.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY created_at`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var matched []storage.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		var rec storage.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if storage.MatchWhere(rec, q.Where) {
			matched = append(matched, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	storage.ApplyOrder(matched, q)
	return storage.ApplyWindow(matched, q), nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch storage.Record) (int64, error) {
	rec, err := s.FindOne(ctx, collection, storage.Query{Where: map[string]any{"id": id}})
	if err != nil {
		if err == storage.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}

	for k, v := range patch {
		rec[k] = v
	}
	rec["id"] = id
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec["updated_at"] = now

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE records SET data = ?, updated_at = ? WHERE collection = ? AND id = ?`,
		string(data), now, collection, id)
	if err != nil {
		return 0, fmt.Errorf("failed to update record: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, collection, id string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete record: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Count(ctx context.Context, collection string, q storage.Query) (int64, error) {
	if len(q.Where) == 0 {
		var n int64
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("failed to count records: %w", err)
		}
		return n, nil
	}

	recs, err := s.FindMany(ctx, collection, storage.Query{Where: q.Where})
	if err != nil {
		return 0, err
	}
	return int64(len(recs)), nil
}
