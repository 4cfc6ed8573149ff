package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"staycal/internal/availability"
	appLog "staycal/internal/log"
	"staycal/internal/model"
	"staycal/internal/payment"
	"staycal/internal/session"
)

var (
	// ErrInvalidStay covers malformed input and impossible date ranges.
	ErrInvalidStay = errors.New("invalid stay")
	// ErrDatesUnavailable means a requested night is occupied or blocked.
	ErrDatesUnavailable = errors.New("selected dates are not available")
	// ErrPayment wraps checkout failures; the pending booking is kept.
	ErrPayment = errors.New("payment checkout failed")
)

// Store is the persistence the service needs.
type Store interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context) ([]model.Booking, error)
	LatestBookingForUser(ctx context.Context, userID string) (model.Booking, error)
	BookingsCovering(ctx context.Context, day string) ([]model.Booking, error)
	ActiveStays(ctx context.Context) ([]model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error
	SetPaymentRef(ctx context.Context, id, ref string) error
}

// Request is the guest reservation form.
type Request struct {
	GuestName      string `json:"guest_name" validate:"required,max=256"`
	GuestEmail     string `json:"guest_email" validate:"required,email,max=256"`
	GuestPhone     string `json:"guest_phone" validate:"max=64"`
	CheckIn        string `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut       string `json:"check_out" validate:"required,datetime=2006-01-02"`
	NumberOfGuests int    `json:"number_of_guests" validate:"required,gte=1,lte=10"`
	Notes          string `json:"notes" validate:"max=2000"`
}

// Result is what a guest gets back after reserving.
type Result struct {
	Booking     model.Booking `json:"booking"`
	Nights      int           `json:"nights"`
	CheckoutURL string        `json:"checkout_url,omitempty"`
}

// Stats summarizes bookings for the owner dashboard.
type Stats struct {
	TotalBookings     int     `json:"total_bookings"`
	ConfirmedBookings int     `json:"confirmed_bookings"`
	PendingBookings   int     `json:"pending_bookings"`
	Revenue           float64 `json:"revenue"`
}

// DefaultMaxNights bounds a stay when Options.MaxNights is unset.
const DefaultMaxNights = 365

type Options struct {
	PricePerNight float64
	Currency      string
	// MaxNights is the longest stay accepted; <= 0 means DefaultMaxNights.
	MaxNights int
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Service owns the booking lifecycle and keeps the calendar's stays in
// step with the store.
type Service struct {
	store    Store
	cal      *availability.Calendar
	payments payment.Provider
	validate *validator.Validate
	opts     Options

	// reserveMu makes the availability check and the insert one step, so
	// two guests cannot book the same night concurrently.
	reserveMu sync.Mutex
}

func NewService(store Store, cal *availability.Calendar, payments payment.Provider, opts Options) *Service {
	if payments == nil {
		payments = payment.Disabled{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Currency == "" {
		opts.Currency = "brl"
	}
	if opts.MaxNights <= 0 {
		opts.MaxNights = DefaultMaxNights
	}
	return &Service{
		store:    store,
		cal:      cal,
		payments: payments,
		validate: validator.New(),
		opts:     opts,
	}
}

// Reserve books the stay [check_in, check_out) for the caller. The booking
// is stored as pending before the checkout is requested; a checkout
// failure returns the stored booking together with an ErrPayment error.
func (s *Service) Reserve(ctx context.Context, req Request) (Result, error) {
	id, ok := session.FromContext(ctx)
	if !ok {
		return Result{}, session.ErrNoIdentity
	}
	if err := s.validate.Struct(req); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidStay, err)
	}

	checkIn, err := availability.ParseDayKey(req.CheckIn)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidStay, err)
	}
	checkOut, err := availability.ParseDayKey(req.CheckOut)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidStay, err)
	}
	nights := checkIn.DaysUntil(checkOut)
	if nights <= 0 {
		return Result{}, fmt.Errorf("%w: check-out must be after check-in", ErrInvalidStay)
	}
	if nights > s.opts.MaxNights {
		return Result{}, fmt.Errorf("%w: stay of %d nights exceeds %d", ErrInvalidStay, nights, s.opts.MaxNights)
	}
	if today := availability.KeyOf(s.opts.Now(), s.cal.Location()); checkIn < today {
		return Result{}, fmt.Errorf("%w: check-in %s is in the past", ErrInvalidStay, checkIn)
	}

	b := model.Booking{
		UserID:         id.UserID,
		GuestName:      req.GuestName,
		GuestEmail:     req.GuestEmail,
		GuestPhone:     req.GuestPhone,
		CheckIn:        checkIn.String(),
		CheckOut:       checkOut.String(),
		NumberOfGuests: req.NumberOfGuests,
		TotalPrice:     float64(nights) * s.opts.PricePerNight,
		Status:         model.StatusPending,
		Notes:          req.Notes,
	}

	if err := s.insertIfFree(ctx, &b); err != nil {
		return Result{}, err
	}
	appLog.Info("booking created", "id", b.ID, "check_in", b.CheckIn, "check_out", b.CheckOut, "nights", nights)

	res := Result{Booking: b, Nights: nights}

	co, err := s.payments.CreateCheckout(ctx, payment.Request{
		BookingID:   b.ID,
		AmountCents: int64(math.Round(b.TotalPrice * 100)),
		Currency:    s.opts.Currency,
		Email:       b.GuestEmail,
		Description: fmt.Sprintf("Stay %s to %s (%d nights)", b.CheckIn, b.CheckOut, nights),
	})
	switch {
	case errors.Is(err, payment.ErrDisabled):
		return res, nil
	case err != nil:
		appLog.Error("checkout failed; booking left pending", err, "id", b.ID)
		return res, fmt.Errorf("%w: %v", ErrPayment, err)
	}

	if err := s.store.SetPaymentRef(ctx, b.ID, co.ID); err != nil {
		appLog.Error("failed to record payment ref", err, "id", b.ID, "session", co.ID)
	} else {
		res.Booking.PaymentRef = co.ID
	}
	res.CheckoutURL = co.URL
	return res, nil
}

func (s *Service) insertIfFree(ctx context.Context, b *model.Booking) error {
	s.reserveMu.Lock()
	defer s.reserveMu.Unlock()

	lastNight := availability.DayKey(b.CheckOut).AddDays(-1)
	if day, found := s.cal.FirstDisabled(availability.DayKey(b.CheckIn), lastNight); found {
		return fmt.Errorf("%w: %s", ErrDatesUnavailable, day)
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}
	return s.RefreshStays(ctx)
}

// UpdateStatus moves a booking to status and re-projects stays.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.BookingStatus) (model.Booking, error) {
	if !status.Valid() {
		return model.Booking{}, fmt.Errorf("%w: unknown status %q", ErrInvalidStay, status)
	}
	if err := s.store.UpdateBookingStatus(ctx, id, status); err != nil {
		return model.Booking{}, err
	}
	if err := s.RefreshStays(ctx); err != nil {
		return model.Booking{}, err
	}
	appLog.Info("booking status updated", "id", id, "status", string(status))
	return s.store.GetBooking(ctx, id)
}

// List returns every booking, newest first.
func (s *Service) List(ctx context.Context) ([]model.Booking, error) {
	return s.store.ListBookings(ctx)
}

// Mine returns the caller's most recent booking.
func (s *Service) Mine(ctx context.Context) (model.Booking, error) {
	id, ok := session.FromContext(ctx)
	if !ok {
		return model.Booking{}, session.ErrNoIdentity
	}
	return s.store.LatestBookingForUser(ctx, id.UserID)
}

// BookingsOn lists bookings whose range touches day, the check-out day
// included, as the dashboard calendar shows them.
func (s *Service) BookingsOn(ctx context.Context, day availability.DayKey) ([]model.Booking, error) {
	return s.store.BookingsCovering(ctx, day.String())
}

// Stats counts bookings; revenue sums confirmed and completed stays.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	all, err := s.store.ListBookings(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{TotalBookings: len(all)}
	for _, b := range all {
		switch b.Status {
		case model.StatusConfirmed:
			st.ConfirmedBookings++
			st.Revenue += b.TotalPrice
		case model.StatusCompleted:
			st.Revenue += b.TotalPrice
		case model.StatusPending:
			st.PendingBookings++
		}
	}
	return st, nil
}

// RefreshStays pushes every non-cancelled booking into the calendar.
func (s *Service) RefreshStays(ctx context.Context) error {
	active, err := s.store.ActiveStays(ctx)
	if err != nil {
		return fmt.Errorf("load active stays: %w", err)
	}
	stays := make([]availability.Stay, 0, len(active))
	for _, b := range active {
		in, err1 := availability.ParseDayKey(b.CheckIn)
		out, err2 := availability.ParseDayKey(b.CheckOut)
		if err1 != nil || err2 != nil {
			appLog.Error("skipping booking with bad dates", errors.Join(err1, err2), "id", b.ID)
			continue
		}
		stays = append(stays, availability.Stay{CheckIn: in, CheckOut: out})
	}
	s.cal.SetStays(stays)
	appLog.Debug("stays refreshed", "count", len(stays))
	return nil
}
