package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"staycal/internal/model"
)

const syncColumns = "id, platform, ical_url, is_active, last_synced_at, created_at, updated_at"

func (s *Store) AddCalendarSync(ctx context.Context, c *model.CalendarSync) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO calendar_sync ("+syncColumns+") VALUES (?, ?, ?, ?, NULL, ?, ?)",
		c.ID, c.Platform, c.ICalURL, boolInt(c.IsActive), formatTime(now), formatTime(now))
	return err
}

// ListCalendarSyncs returns entries newest first.
func (s *Store) ListCalendarSyncs(ctx context.Context) ([]model.CalendarSync, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+syncColumns+" FROM calendar_sync ORDER BY created_at DESC, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.CalendarSync{}
	for rows.Next() {
		c, err := scanSync(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) GetCalendarSync(ctx context.Context, id string) (model.CalendarSync, error) {
	c, err := scanSync(s.db.QueryRowContext(ctx, "SELECT "+syncColumns+" FROM calendar_sync WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.CalendarSync{}, ErrNotFound
	}
	return c, err
}

func (s *Store) DeleteCalendarSync(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM calendar_sync WHERE id = ?", id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// MarkSynced stamps last_synced_at.
func (s *Store) MarkSynced(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE calendar_sync SET last_synced_at = ?, updated_at = ? WHERE id = ?",
		formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func scanSync(sc scanner) (model.CalendarSync, error) {
	var (
		c          model.CalendarSync
		isActive   int
		lastSynced sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := sc.Scan(&c.ID, &c.Platform, &c.ICalURL, &isActive, &lastSynced, &createdAt, &updatedAt); err != nil {
		return model.CalendarSync{}, err
	}
	c.IsActive = isActive != 0
	if lastSynced.Valid {
		t := parseTime(lastSynced.String)
		c.LastSyncedAt = &t
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}
