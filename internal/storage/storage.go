// Package storage defines the record-store collaborator consumed by the
// relay core. The core treats it purely as a key-value/record store over
// named collections and performs no query translation itself.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Record is a single stored document. Every record carries an "id" field
// and RFC3339Nano "created_at"/"updated_at" timestamps set on insert.
type Record map[string]any

// String returns the named field as a string, or "" when absent or not a
// string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Bool returns the named field as a bool, or false when absent.
func (r Record) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

// ID returns the record's identifier.
func (r Record) ID() string {
	return r.String("id")
}

// Query narrows and orders a collection scan. Where matches fields by
// equality; OrderBy names a single field.
type Query struct {
	Where      map[string]any
	OrderBy    string
	Descending bool
	Limit      int
	Offset     int
}

// RecordStore is the storage abstraction consumed by the relay. All
// mutating operations report the number of affected records.
type RecordStore interface {
	// Insert stores a record and returns its id. A missing id is assigned.
	Insert(ctx context.Context, collection string, rec Record) (string, error)

	// FindOne returns the first record matching the query, or ErrNotFound.
	FindOne(ctx context.Context, collection string, q Query) (Record, error)

	// FindMany returns all records matching the query in query order.
	FindMany(ctx context.Context, collection string, q Query) ([]Record, error)

	// Update patches the record with the given id. Returns the affected count.
	Update(ctx context.Context, collection, id string, patch Record) (int64, error)

	// Delete removes the record with the given id. Returns the affected count.
	Delete(ctx context.Context, collection, id string) (int64, error)

	// Count returns the number of records matching the query.
	Count(ctx context.Context, collection string, q Query) (int64, error)
}

// Collections used by the relay. Collaborating services may add their own.
const (
	CollectionMessages    = "messages"
	CollectionProviders   = "ai_providers"
	CollectionCredentials = "credentials"
	CollectionWorkspaces  = "workspaces"
	CollectionPersonas    = "personalities"
	CollectionCorpora     = "search_corpora"
)
