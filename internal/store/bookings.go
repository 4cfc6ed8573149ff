package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"staycal/internal/model"
)

const bookingColumns = `id, user_id, guest_name, guest_email, guest_phone, check_in, check_out,
  number_of_guests, total_price, status, notes, payment_ref, created_at, updated_at`

// CreateBooking inserts b, assigning ID and timestamps when unset.
func (s *Store) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO bookings (`+bookingColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		b.ID,
		b.UserID,
		b.GuestName,
		b.GuestEmail,
		b.GuestPhone,
		b.CheckIn,
		b.CheckOut,
		b.NumberOfGuests,
		b.TotalPrice,
		string(b.Status),
		b.Notes,
		b.PaymentRef,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	return err
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// ListBookings returns every booking, newest first.
func (s *Store) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.queryBookings(ctx, "SELECT "+bookingColumns+" FROM bookings ORDER BY created_at DESC, id")
}

// LatestBookingForUser returns the most recently created booking of userID.
func (s *Store) LatestBookingForUser(ctx context.Context, userID string) (model.Booking, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id LIMIT 1", userID)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrNotFound
	}
	return b, err
}

// BookingsCovering returns bookings with check_in <= day <= check_out, the
// departure day included.
func (s *Store) BookingsCovering(ctx context.Context, day string) ([]model.Booking, error) {
	return s.queryBookings(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE check_in <= ? AND check_out >= ? ORDER BY check_in, id",
		day, day)
}

// ActiveStays returns non-cancelled bookings ordered by check-in.
func (s *Store) ActiveStays(ctx context.Context) ([]model.Booking, error) {
	return s.queryBookings(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE status != ? ORDER BY check_in, id",
		string(model.StatusCancelled))
}

func (s *Store) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// SetPaymentRef records the checkout session id of a booking.
func (s *Store) SetPaymentRef(ctx context.Context, id, ref string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET payment_ref = ?, updated_at = ? WHERE id = ?",
		ref, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (s *Store) queryBookings(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(sc scanner) (model.Booking, error) {
	var (
		b          model.Booking
		status     string
		phone      sql.NullString
		notes      sql.NullString
		paymentRef sql.NullString
		createdAt  string
		updatedAt  string
	)
	if err := sc.Scan(
		&b.ID,
		&b.UserID,
		&b.GuestName,
		&b.GuestEmail,
		&phone,
		&b.CheckIn,
		&b.CheckOut,
		&b.NumberOfGuests,
		&b.TotalPrice,
		&status,
		&notes,
		&paymentRef,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	b.GuestPhone = phone.String
	b.Notes = notes.String
	b.PaymentRef = paymentRef.String
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return b, nil
}
