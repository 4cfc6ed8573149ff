package model

import "time"

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Valid reports whether s is one of the four known statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Booking is a guest reservation. CheckIn and CheckOut are calendar days
// (YYYY-MM-DD); CheckOut is the departure day and is not a booked night.
type Booking struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	GuestName      string        `json:"guest_name"`
	GuestEmail     string        `json:"guest_email"`
	GuestPhone     string        `json:"guest_phone,omitempty"`
	CheckIn        string        `json:"check_in"`
	CheckOut       string        `json:"check_out"`
	NumberOfGuests int           `json:"number_of_guests"`
	TotalPrice     float64       `json:"total_price"`
	Status         BookingStatus `json:"status"`
	Notes          string        `json:"notes,omitempty"`
	PaymentRef     string        `json:"payment_ref,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Profile is the per-identity record; IsOwner gates the dashboard.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	IsOwner   bool      `json:"is_owner"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CalendarSync is an external calendar (Airbnb, Booking.com, ...) whose
// iCal feed the owner registered.
type CalendarSync struct {
	ID           string     `json:"id"`
	Platform     string     `json:"platform"`
	ICalURL      string     `json:"ical_url"`
	IsActive     bool       `json:"is_active"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
