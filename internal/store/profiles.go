package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"staycal/internal/model"
)

func (s *Store) GetProfile(ctx context.Context, id string) (model.Profile, error) {
	var (
		p         model.Profile
		email     sql.NullString
		fullName  sql.NullString
		phone     sql.NullString
		isOwner   int
		createdAt string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, full_name, phone, is_owner, created_at, updated_at FROM profiles WHERE id = ?", id,
	).Scan(&p.ID, &email, &fullName, &phone, &isOwner, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	if err != nil {
		return model.Profile{}, err
	}
	p.Email = email.String
	p.FullName = fullName.String
	p.Phone = phone.String
	p.IsOwner = isOwner != 0
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

// UpsertProfile inserts p or updates every field of an existing row
// except created_at.
func (s *Store) UpsertProfile(ctx context.Context, p *model.Profile) error {
	if p.ID == "" {
		return errors.New("profile id is empty")
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO profiles (id, email, full_name, phone, is_owner, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  email = excluded.email,
  full_name = excluded.full_name,
  phone = excluded.phone,
  is_owner = excluded.is_owner,
  updated_at = excluded.updated_at;`,
		p.ID, p.Email, p.FullName, p.Phone, boolInt(p.IsOwner), formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return err
}
