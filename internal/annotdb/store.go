// Package annotdb persists video event annotations in sqlite so large
// annotation sets can be imported once and queried or re-exported for
// sampling without re-parsing JSON.
package annotdb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/clipset/internal/annotation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a sqlite-backed annotation store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the annotation database at path and applies any
// pending schema migrations.
func Open(path string) (*Store, error) {
	// DSN pragma so every pooled connection enforces foreign keys.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open annotation db: %w", err)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	// Note: m is not closed because closing it would close the underlying
	// DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for ad hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// InsertVideo stores one annotated video and its events. Event annotation
// order is preserved via the seq column. Returns the generated video id.
func (s *Store) InsertVideo(v annotation.Video) (string, error) {
	if err := v.Validate(); err != nil {
		return "", err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	videoID := uuid.New().String()
	_, err = tx.Exec(
		`INSERT INTO videos (video_id, name, num_frames, created_at_ns) VALUES (?, ?, ?, ?)`,
		videoID, v.Name, v.NumFrames, time.Now().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("insert video %q: %w", v.Name, err)
	}

	for seq, e := range v.Events {
		_, err = tx.Exec(
			`INSERT INTO events (event_id, video_id, frame, label, seq) VALUES (?, ?, ?, ?, ?)`,
			uuid.New().String(), videoID, e.Frame, e.Label, seq,
		)
		if err != nil {
			return "", fmt.Errorf("insert event %d of %q: %w", seq, v.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit insert: %w", err)
	}
	return videoID, nil
}

// BulkImport stores a whole annotation set in one transaction.
func (s *Store) BulkImport(videos []annotation.Video) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for _, v := range videos {
		if err := v.Validate(); err != nil {
			return err
		}
		videoID := uuid.New().String()
		_, err = tx.Exec(
			`INSERT INTO videos (video_id, name, num_frames, created_at_ns) VALUES (?, ?, ?, ?)`,
			videoID, v.Name, v.NumFrames, now,
		)
		if err != nil {
			return fmt.Errorf("insert video %q: %w", v.Name, err)
		}
		for seq, e := range v.Events {
			_, err = tx.Exec(
				`INSERT INTO events (event_id, video_id, frame, label, seq) VALUES (?, ?, ?, ?, ?)`,
				uuid.New().String(), videoID, e.Frame, e.Label, seq,
			)
			if err != nil {
				return fmt.Errorf("insert event %d of %q: %w", seq, v.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// ExportVideos reads the full annotation set back, videos in insertion
// order and events in annotation order, ready to feed the sampler.
func (s *Store) ExportVideos() ([]annotation.Video, error) {
	rows, err := s.db.Query(`SELECT video_id, name, num_frames FROM videos ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []annotation.Video
	var ids []string
	for rows.Next() {
		var id string
		var v annotation.Video
		if err := rows.Scan(&id, &v.Name, &v.NumFrames); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	for i, id := range ids {
		events, err := s.eventsForVideoID(id)
		if err != nil {
			return nil, fmt.Errorf("events for %q: %w", videos[i].Name, err)
		}
		videos[i].Events = events
	}
	return videos, nil
}

func (s *Store) eventsForVideoID(videoID string) ([]annotation.Event, error) {
	rows, err := s.db.Query(`SELECT frame, label FROM events WHERE video_id = ? ORDER BY seq`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []annotation.Event
	for rows.Next() {
		var e annotation.Event
		if err := rows.Scan(&e.Frame, &e.Label); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// EventsForVideo returns the events of one video by name, in annotation
// order.
func (s *Store) EventsForVideo(name string) ([]annotation.Event, error) {
	var id string
	err := s.db.QueryRow(`SELECT video_id FROM videos WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %q not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup video %q: %w", name, err)
	}
	return s.eventsForVideoID(id)
}

// VideoCount returns the number of stored videos.
func (s *Store) VideoCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM videos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// ClassCounts returns the number of events per label across the store.
func (s *Store) ClassCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT label, COUNT(*) FROM events GROUP BY label`)
	if err != nil {
		return nil, fmt.Errorf("class counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan class count: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
