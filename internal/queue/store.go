package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/karaqr/realtime/internal/model"
)

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("queue entry not found")

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and mutates the singer queue.
type Store struct {
	db     Querier
	logger *slog.Logger
}

// NewStore creates a queue store backed by a database pool.
func NewStore(db Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// List returns every entry for a tenant, oldest first.
func (s *Store) List(ctx context.Context, tenantID string) ([]model.QueueEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, tenant_id, name, title_raw, youtube_url, status, created_at
		FROM queue_entries
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SingerName, &e.SongTitle, &e.YoutubeURL, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read queue entries: %w", err)
	}

	return entries, nil
}

// Add inserts a new waiting entry and returns it with its assigned
// id and creation time.
func (s *Store) Add(ctx context.Context, tenantID, singerName, songTitle, youtubeURL string) (model.QueueEntry, error) {
	entry := model.QueueEntry{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		SingerName: singerName,
		SongTitle:  songTitle,
		YoutubeURL: youtubeURL,
		Status:     model.StatusWaiting,
	}

	err := s.db.QueryRow(ctx, `
		INSERT INTO queue_entries (id, tenant_id, name, title_raw, youtube_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, entry.ID, entry.TenantID, entry.SingerName, entry.SongTitle, entry.YoutubeURL, entry.Status).Scan(&entry.CreatedAt)
	if err != nil {
		return model.QueueEntry{}, fmt.Errorf("insert queue entry: %w", err)
	}

	s.logger.Debug("queue entry added",
		"tenant_id", tenantID,
		"entry_id", entry.ID,
		"singer", singerName,
	)
	return entry, nil
}

// UpdateStatus moves an entry to a new status.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.QueueStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid queue status %q", status)
	}

	ct, err := s.db.Exec(ctx, `
		UPDATE queue_entries SET status = $2 WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update queue entry status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Remove deletes an entry.
func (s *Store) Remove(ctx context.Context, id string) error {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM queue_entries WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear drops every entry for a tenant and returns how many were removed.
func (s *Store) Clear(ctx context.Context, tenantID string) (int64, error) {
	ct, err := s.db.Exec(ctx, `
		DELETE FROM queue_entries WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return ct.RowsAffected(), nil
}

// CallNext advances the rotation through a stored procedure: the current
// performer is marked done and the oldest waiting entry becomes called.
// It returns the id of the newly called entry, or ErrNotFound when the
// queue has nobody waiting.
func (s *Store) CallNext(ctx context.Context, tenantID string) (string, error) {
	var id *string
	err := s.db.QueryRow(ctx, `SELECT karaqr_call_next($1)`, tenantID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("call next singer: %w", err)
	}
	if id == nil {
		return "", ErrNotFound
	}

	s.logger.Info("next singer called", "tenant_id", tenantID, "entry_id", *id)
	return *id, nil
}

// TogglePause flips the tenant's intake pause flag and returns the new
// value.
func (s *Store) TogglePause(ctx context.Context, tenantID string) (bool, error) {
	var paused bool
	err := s.db.QueryRow(ctx, `SELECT karaqr_toggle_pause($1)`, tenantID).Scan(&paused)
	if err != nil {
		return false, fmt.Errorf("toggle queue pause: %w", err)
	}

	s.logger.Info("queue intake toggled", "tenant_id", tenantID, "paused", paused)
	return paused, nil
}
