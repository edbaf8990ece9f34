// Package store provides durable backends for auction records.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

var log = logging.Logger("store")

var (
	// ErrVersionConflict is returned by Save when the stored version is not
	// the one the caller expected to replace.
	ErrVersionConflict = errors.New("version conflict")
	// ErrExists is returned by Create for a duplicate id.
	ErrExists = errors.New("auction already exists")
)

// Backend is a record store usable by both the auction core and the HTTP API.
// All implementations must be safe for concurrent use.
type Backend interface {
	auction.Store
	// List returns every auction, newest first.
	List(ctx context.Context) ([]auction.Auction, error)
	// Create inserts a new record.
	Create(ctx context.Context, a auction.Auction) error
	Close() error
}

// MemoryStore keeps records in a map. Values are copied in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]auction.Auction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]auction.Auction)}
}

// Load returns a copy of the record for id.
func (m *MemoryStore) Load(_ context.Context, id string) (auction.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.data[id]
	if !ok {
		return auction.Auction{}, auction.ErrNotFound
	}
	return a.Clone(), nil
}

// Save replaces the record if the stored version is a.Version-1.
func (m *MemoryStore) Save(_ context.Context, a auction.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.data[a.ID]
	if !ok {
		return auction.ErrNotFound
	}
	if cur.Version != a.Version-1 {
		return fmt.Errorf("%w: stored %d, saving %d", ErrVersionConflict, cur.Version, a.Version)
	}
	m.data[a.ID] = a.Clone()
	return nil
}

// ListActive returns scheduled and active records.
func (m *MemoryStore) ListActive(_ context.Context) ([]auction.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auction.Auction, 0, len(m.data))
	for _, a := range m.data {
		if a.Status == auction.StatusScheduled || a.Status == auction.StatusActive {
			out = append(out, a.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

// List returns every record, newest first.
func (m *MemoryStore) List(_ context.Context) ([]auction.Auction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]auction.Auction, 0, len(m.data))
	for _, a := range m.data {
		out = append(out, a.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

// Create inserts a new record.
func (m *MemoryStore) Create(_ context.Context, a auction.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, a.ID)
	}
	m.data[a.ID] = a.Clone()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func sortByStart(as []auction.Auction) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].StartTime.Equal(as[j].StartTime) {
			return as[i].ID < as[j].ID
		}
		return as[i].StartTime.Before(as[j].StartTime)
	})
}

func sortNewestFirst(as []auction.Auction) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].CreatedAt.Equal(as[j].CreatedAt) {
			return as[i].ID < as[j].ID
		}
		return as[i].CreatedAt.After(as[j].CreatedAt)
	})
}
