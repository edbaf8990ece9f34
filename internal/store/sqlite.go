package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Bhavya-Ezio/Wenddora-Basit-24/internal/auction"
)

// SQLiteStore keeps each auction as a JSON document next to the indexed
// columns the sweeper and listing queries need.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}
	log.Infow("sqlite store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS auctions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			version INTEGER NOT NULL,
			doc TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status, start_time);
		CREATE INDEX IF NOT EXISTS idx_auctions_created ON auctions(created_at DESC);
	`)
	return err
}

// Load returns the record for id.
func (s *SQLiteStore) Load(ctx context.Context, id string) (auction.Auction, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM auctions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Auction{}, auction.ErrNotFound
	}
	if err != nil {
		return auction.Auction{}, fmt.Errorf("query auction %s: %w", id, err)
	}
	return decodeDoc(doc)
}

// Save replaces the record if the stored version is a.Version-1.
func (s *SQLiteStore) Save(ctx context.Context, a auction.Auction) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode auction %s: %w", a.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE auctions
		SET status = ?, start_time = ?, end_time = ?, version = ?, doc = ?
		WHERE id = ? AND version = ?`,
		string(a.Status), a.StartTime.UnixNano(), a.EndTime.UnixNano(), a.Version, string(doc),
		a.ID, a.Version-1)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", a.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var stored int64
	err = s.db.QueryRowContext(ctx, `SELECT version FROM auctions WHERE id = ?`, a.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stored %d, saving %d", ErrVersionConflict, stored, a.Version)
}

// ListActive returns scheduled and active records ordered by start time.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]auction.Auction, error) {
	return s.query(ctx, `SELECT doc FROM auctions WHERE status IN (?, ?) ORDER BY start_time, id`,
		string(auction.StatusScheduled), string(auction.StatusActive))
}

// List returns every record, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]auction.Auction, error) {
	return s.query(ctx, `SELECT doc FROM auctions ORDER BY created_at DESC, id`)
}

// Create inserts a new record.
func (s *SQLiteStore) Create(ctx context.Context, a auction.Auction) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode auction %s: %w", a.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO auctions (id, status, start_time, end_time, created_at, version, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Status), a.StartTime.UnixNano(), a.EndTime.UnixNano(), a.CreatedAt.UnixNano(), a.Version, string(doc))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrExists, a.ID)
		}
		return fmt.Errorf("insert auction %s: %w", a.ID, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]auction.Auction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []auction.Auction{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		a, err := decodeDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func decodeDoc(doc string) (auction.Auction, error) {
	var a auction.Auction
	if err := json.Unmarshal([]byte(doc), &a); err != nil {
		return auction.Auction{}, fmt.Errorf("decode auction: %w", err)
	}
	if a.Bids == nil {
		a.Bids = []auction.Bid{}
	}
	return a, nil
}
