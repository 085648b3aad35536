// Package history persists monitor events in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-fallwatch/pkg/monitor"
)

// List limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// SnapshotQuality is the JPEG quality of stored alert frames.
const SnapshotQuality = 80

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("history: not found")

// Record is a persisted monitor event.
type Record struct {
	ID                uuid.UUID    `json:"id"`
	Episode           uuid.UUID    `json:"episode"`
	Kind              monitor.Kind `json:"kind"`
	Time              time.Time    `json:"time"`
	AspectRatio       float64      `json:"aspect_ratio"`
	ConsecutiveFrames int          `json:"consecutive_frames"`
	Message           string       `json:"message,omitempty"`
	Err               string       `json:"error,omitempty"`
	HasSnapshot       bool         `json:"has_snapshot"`

	Snapshot []byte `json:"-"`
}

// FromEvent converts an event. Fall alert frames are stored as JPEG.
func FromEvent(ev monitor.Event) (Record, error) {
	r := Record{
		ID:                ev.ID,
		Episode:           ev.Episode,
		Kind:              ev.Kind,
		Time:              ev.Time,
		AspectRatio:       ev.AspectRatio,
		ConsecutiveFrames: ev.ConsecutiveFrames,
		Message:           ev.Message,
		Err:               ev.Err,
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if ev.Frame != nil && ev.Frame.Image != nil {
		img, err := ev.Frame.JPEG(SnapshotQuality)
		if err != nil {
			return r, fmt.Errorf("encode snapshot: %w", err)
		}
		r.Snapshot = img
		r.HasSnapshot = true
	}
	return r, nil
}

// Store is the SQLite event store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS events (
			id                 TEXT PRIMARY KEY,
			episode            TEXT NOT NULL,
			kind               TEXT NOT NULL,
			time_ns            BIGINT NOT NULL,
			aspect_ratio       DOUBLE NOT NULL DEFAULT 0,
			consecutive_frames INTEGER NOT NULL DEFAULT 0,
			message            TEXT NOT NULL DEFAULT '',
			error              TEXT NOT NULL DEFAULT '',
			snapshot           BLOB
		);
		CREATE INDEX IF NOT EXISTS events_time_idx ON events (time_ns DESC);
		CREATE INDEX IF NOT EXISTS events_episode_idx ON events (episode);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts r.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, episode, kind, time_ns, aspect_ratio, consecutive_frames, message, error, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Episode.String(), string(r.Kind), r.Time.UnixNano(),
		r.AspectRatio, r.ConsecutiveFrames, r.Message, r.Err, r.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", r.ID, err)
	}
	return nil
}

// List returns the newest records first. limit <= 0 means DefaultLimit and
// values above MaxLimit are capped.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return s.query(ctx, `
		SELECT id, episode, kind, time_ns, aspect_ratio, consecutive_frames, message, error, snapshot IS NOT NULL
		FROM events ORDER BY time_ns DESC, rowid DESC LIMIT ?`, limit)
}

// Episode returns the records of one fall episode, oldest first.
func (s *Store) Episode(ctx context.Context, id uuid.UUID) ([]Record, error) {
	return s.query(ctx, `
		SELECT id, episode, kind, time_ns, aspect_ratio, consecutive_frames, message, error, snapshot IS NOT NULL
		FROM events WHERE episode = ? ORDER BY time_ns ASC, rowid ASC`, id.String())
}

// Snapshot returns the stored alert frame for an event.
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var img []byte
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM events WHERE id = ?`, id.String()).Scan(&img)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && img == nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot %s: %w", id, err)
	}
	return img, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var (
			r           Record
			id, episode string
			kind        string
			timeNS      int64
		)
		if err := rows.Scan(&id, &episode, &kind, &timeNS, &r.AspectRatio,
			&r.ConsecutiveFrames, &r.Message, &r.Err, &r.HasSnapshot); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse id %q: %w", id, err)
		}
		if r.Episode, err = uuid.Parse(episode); err != nil {
			return nil, fmt.Errorf("parse episode %q: %w", episode, err)
		}
		r.Kind = monitor.Kind(kind)
		r.Time = time.Unix(0, timeNS)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Name implements monitor.Handler.
func (s *Store) Name() string { return "history" }

// Handle implements monitor.Handler.
func (s *Store) Handle(ctx context.Context, ev monitor.Event) error {
	r, err := FromEvent(ev)
	if err != nil {
		return err
	}
	return s.Record(ctx, r)
}
