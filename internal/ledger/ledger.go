package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when nothing has been rendered on a display yet.
var ErrNotFound = errors.New("ledger: no render recorded")

// Render is the content currently shown on a display.
type Render struct {
	DisplayID     string
	ContentDigest string
	SourceURL     string
	RenderedAt    time.Time
}

// Store persists the current render per display in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a ledger store over an open database with the
// display_ledger migration applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Current returns the last render recorded for displayID.
func (s *Store) Current(ctx context.Context, displayID string) (*Render, error) {
	const query = `SELECT display_id, content_digest, source_url, rendered_at
		FROM display_ledger WHERE display_id = ?`

	var (
		r          Render
		renderedAt string
	)
	err := s.db.QueryRowContext(ctx, query, displayID).
		Scan(&r.DisplayID, &r.ContentDigest, &r.SourceURL, &renderedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ledger for %s: %w", displayID, err)
	}

	r.RenderedAt, err = time.Parse(time.RFC3339Nano, renderedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing rendered_at %q: %w", renderedAt, err)
	}
	return &r, nil
}

// Record replaces the current render for r.DisplayID. A zero RenderedAt is
// set to now.
func (s *Store) Record(ctx context.Context, r *Render) error {
	if r.RenderedAt.IsZero() {
		r.RenderedAt = s.now().UTC()
	}

	const query = `INSERT INTO display_ledger (display_id, content_digest, source_url, rendered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(display_id) DO UPDATE SET
			content_digest = excluded.content_digest,
			source_url = excluded.source_url,
			rendered_at = excluded.rendered_at`
	_, err := s.db.ExecContext(ctx, query,
		r.DisplayID, r.ContentDigest, r.SourceURL, r.RenderedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording render for %s: %w", r.DisplayID, err)
	}
	return nil
}

// IsShowing reports whether digest is what displayID currently shows.
func (s *Store) IsShowing(ctx context.Context, displayID, digest string) (bool, error) {
	cur, err := s.Current(ctx, displayID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cur.ContentDigest == digest, nil
}

// Forget drops the record for displayID, e.g. after the panel was cleared.
func (s *Store) Forget(ctx context.Context, displayID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM display_ledger WHERE display_id = ?`, displayID); err != nil {
		return fmt.Errorf("forgetting render for %s: %w", displayID, err)
	}
	return nil
}
