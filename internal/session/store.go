// Package session keeps server-side login sessions and fans out
// session-change events to connected clients.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

const table = "sessions"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		table: {
			Name: table,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"userID": {
					Name:    "userID",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
				"expires": {
					Name:    "expires",
					Indexer: &memdb.IntFieldIndex{Field: "Expires"},
				},
			},
		},
	},
}

// Record is one live login session. Records are immutable once stored;
// go-memdb hands out the stored pointer, so callers must not modify it.
type Record struct {
	ID      string
	UserID  string
	Email   string
	Expires int64 // unix seconds
}

// ExpiresAt returns the expiry as a time.Time.
func (r *Record) ExpiresAt() time.Time {
	return time.Unix(r.Expires, 0).UTC()
}

// Store is an in-memory session table backed by hashicorp/go-memdb.
// Sessions do not survive a restart; users simply sign in again.
type Store struct {
	db *memdb.MemDB
}

// NewStore creates an empty session store.
func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("session: creating store: %w", err)
	}
	return &Store{db: db}, nil
}

// Create starts a new session for the user that lasts until expiresAt.
func (s *Store) Create(_ context.Context, userID, email string, expiresAt time.Time) (*Record, error) {
	rec := &Record{
		ID:      uuid.NewString(),
		UserID:  userID,
		Email:   email,
		Expires: expiresAt.Unix(),
	}

	txn := s.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(table, rec); err != nil {
		return nil, fmt.Errorf("session: inserting: %w", err)
	}
	txn.Commit()

	return rec, nil
}

// Get returns the session with the given id, or (nil, nil) if there is none.
func (s *Store) Get(_ context.Context, id string) (*Record, error) {
	txn := s.db.Txn(false)
	obj, err := txn.First(table, "id", id)
	if err != nil {
		return nil, fmt.Errorf("session: looking up %s: %w", id, err)
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*Record), nil
}

// ListByUser returns every live session of a user.
func (s *Store) ListByUser(_ context.Context, userID string) ([]*Record, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(table, "userID", userID)
	if err != nil {
		return nil, fmt.Errorf("session: listing for user %s: %w", userID, err)
	}

	var out []*Record
	for obj := it.Next(); obj != nil; obj = it.Next() {
		out = append(out, obj.(*Record))
	}
	return out, nil
}

// Terminate removes a session. It returns the removed record, or nil if the
// session did not exist (already signed out or swept).
func (s *Store) Terminate(_ context.Context, id string) (*Record, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(table, "id", id)
	if err != nil {
		return nil, fmt.Errorf("session: looking up %s: %w", id, err)
	}
	if obj == nil {
		return nil, nil
	}
	if err := txn.Delete(table, obj); err != nil {
		return nil, fmt.Errorf("session: deleting %s: %w", id, err)
	}
	txn.Commit()

	return obj.(*Record), nil
}

// TerminateExpired removes every session whose expiry is at or before now
// and returns the removed records.
func (s *Store) TerminateExpired(_ context.Context, now time.Time) ([]*Record, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.LowerBound(table, "expires", int64(0))
	if err != nil {
		return nil, fmt.Errorf("session: scanning expiries: %w", err)
	}

	// Collect first: deleting while iterating a radix tree iterator is unsafe.
	cutoff := now.Unix()
	var expired []*Record
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*Record)
		if rec.Expires > cutoff {
			break
		}
		expired = append(expired, rec)
	}

	for _, rec := range expired {
		if err := txn.Delete(table, rec); err != nil {
			return nil, fmt.Errorf("session: deleting %s: %w", rec.ID, err)
		}
	}
	txn.Commit()

	return expired, nil
}
