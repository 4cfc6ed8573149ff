package booking

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"staycal/internal/availability"
	"staycal/internal/model"
	"staycal/internal/payment"
	"staycal/internal/session"
	"staycal/internal/store"
)

type fakeProvider struct {
	err  error
	reqs []payment.Request
}

func (f *fakeProvider) CreateCheckout(_ context.Context, req payment.Request) (payment.Checkout, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return payment.Checkout{}, f.err
	}
	return payment.Checkout{ID: "cs_" + req.BookingID, URL: "https://pay.example/" + req.BookingID}, nil
}

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T, p payment.Provider) (*Service, *availability.Calendar, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "staycal.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cal := availability.NewCalendar(time.UTC)
	svc := NewService(st, cal, p, Options{
		PricePerNight: 500,
		Currency:      "brl",
		Now:           func() time.Time { return fixedNow },
	})
	return svc, cal, st
}

func guestCtx(id string) context.Context {
	return session.WithIdentity(context.Background(), session.Identity{UserID: id})
}

func validRequest(in, out string) Request {
	return Request{
		GuestName:      "Ana",
		GuestEmail:     "ana@example.com",
		CheckIn:        in,
		CheckOut:       out,
		NumberOfGuests: 2,
	}
}

func TestReserveCreatesPendingBookingAndCheckout(t *testing.T) {
	p := &fakeProvider{}
	svc, cal, _ := newService(t, p)

	res, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2024-06-04"))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.Nights != 3 || res.Booking.TotalPrice != 1500 || res.Booking.Status != model.StatusPending {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.CheckoutURL == "" || res.Booking.PaymentRef != "cs_"+res.Booking.ID {
		t.Fatalf("checkout not recorded: %+v", res)
	}
	if len(p.reqs) != 1 || p.reqs[0].AmountCents != 150000 || p.reqs[0].Currency != "brl" {
		t.Fatalf("unexpected checkout request %+v", p.reqs)
	}

	if !cal.IsDisabled("2024-06-03") {
		t.Fatal("last night must be disabled after reserving")
	}
	if cal.IsDisabled("2024-06-04") {
		t.Fatal("check-out day must stay free")
	}
}

func TestReserveRejectsOverlapButAllowsBackToBack(t *testing.T) {
	svc, _, _ := newService(t, &fakeProvider{})

	if _, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2024-06-04")); err != nil {
		t.Fatalf("first Reserve: %v", err)
	}
	if _, err := svc.Reserve(guestCtx("u2"), validRequest("2024-06-03", "2024-06-05")); !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("overlap err = %v", err)
	}
	if _, err := svc.Reserve(guestCtx("u2"), validRequest("2024-06-04", "2024-06-06")); err != nil {
		t.Fatalf("back-to-back Reserve: %v", err)
	}
}

func TestReserveHonoursOwnerOverrides(t *testing.T) {
	svc, cal, _ := newService(t, &fakeProvider{})
	cal.ApplyAvailability(availability.SelectedRange{From: "2024-06-02", To: "2024-06-02"}, false)

	_, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2024-06-04"))
	if !errors.Is(err, ErrDatesUnavailable) {
		t.Fatalf("err = %v, want ErrDatesUnavailable", err)
	}
}

func TestReserveValidation(t *testing.T) {
	svc, _, _ := newService(t, &fakeProvider{})

	if _, err := svc.Reserve(context.Background(), validRequest("2024-06-01", "2024-06-04")); !errors.Is(err, session.ErrNoIdentity) {
		t.Fatalf("anonymous err = %v", err)
	}

	bad := []Request{
		validRequest("2024-06-04", "2024-06-01"),
		validRequest("2024-06-01", "2024-06-01"),
		validRequest("2024-04-01", "2024-04-03"),
		validRequest("06/01/2024", "2024-06-04"),
		func() Request { r := validRequest("2024-06-01", "2024-06-04"); r.NumberOfGuests = 0; return r }(),
		func() Request { r := validRequest("2024-06-01", "2024-06-04"); r.GuestEmail = "nope"; return r }(),
	}
	for i, req := range bad {
		if _, err := svc.Reserve(guestCtx("u1"), req); !errors.Is(err, ErrInvalidStay) {
			t.Fatalf("case %d: err = %v, want ErrInvalidStay", i, err)
		}
	}
}

func TestReserveRejectsOverlongStays(t *testing.T) {
	p := &fakeProvider{}
	svc, cal, st := newService(t, p)

	if _, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "9999-12-31")); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("far check-out err = %v, want ErrInvalidStay", err)
	}
	if _, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2025-06-02")); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("366 nights err = %v, want ErrInvalidStay", err)
	}
	if len(p.reqs) != 0 {
		t.Fatal("rejected stays must not reach the payment provider")
	}
	if all, _ := st.ListBookings(context.Background()); len(all) != 0 {
		t.Fatalf("rejected stays were stored: %+v", all)
	}
	if cal.Day("2024-06-02").Occupied {
		t.Fatal("rejected stay occupies the calendar")
	}

	res, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2025-06-01"))
	if err != nil || res.Nights != DefaultMaxNights {
		t.Fatalf("365 nights = %+v, %v", res, err)
	}
}

func TestReservePaymentFailureKeepsPendingBooking(t *testing.T) {
	svc, _, st := newService(t, &fakeProvider{err: errors.New("card network down")})

	res, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2024-06-04"))
	if !errors.Is(err, ErrPayment) {
		t.Fatalf("err = %v, want ErrPayment", err)
	}
	got, err := st.GetBooking(context.Background(), res.Booking.ID)
	if err != nil {
		t.Fatalf("booking not kept: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestReserveWithPaymentsDisabled(t *testing.T) {
	svc, _, _ := newService(t, nil)

	res, err := svc.Reserve(guestCtx("u1"), validRequest("2024-06-01", "2024-06-02"))
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if res.CheckoutURL != "" {
		t.Fatalf("unexpected checkout URL %q", res.CheckoutURL)
	}
}

func TestUpdateStatusReleasesNights(t *testing.T) {
	svc, cal, _ := newService(t, &fakeProvider{})
	ctx := guestCtx("u1")

	res, err := svc.Reserve(ctx, validRequest("2024-06-01", "2024-06-04"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateStatus(ctx, res.Booking.ID, "archived"); !errors.Is(err, ErrInvalidStay) {
		t.Fatalf("unknown status err = %v", err)
	}

	got, err := svc.UpdateStatus(ctx, res.Booking.ID, model.StatusCancelled)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Fatalf("status = %s", got.Status)
	}
	if cal.IsDisabled("2024-06-02") {
		t.Fatal("cancelled booking must release its nights")
	}

	if _, err := svc.UpdateStatus(ctx, "missing", model.StatusConfirmed); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("missing booking err = %v", err)
	}
}

func TestStatsBookingsOnAndMine(t *testing.T) {
	svc, _, _ := newService(t, &fakeProvider{})
	ctx := guestCtx("u1")

	a, err := svc.Reserve(ctx, validRequest("2024-06-01", "2024-06-04"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Reserve(guestCtx("u2"), validRequest("2024-06-10", "2024-06-12"))
	if err != nil {
		t.Fatal(err)
	}
	c, err := svc.Reserve(guestCtx("u3"), validRequest("2024-06-20", "2024-06-21"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, a.Booking.ID, model.StatusConfirmed); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateStatus(ctx, b.Booking.ID, model.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	_ = c

	st, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := Stats{TotalBookings: 3, ConfirmedBookings: 1, PendingBookings: 1, Revenue: 1500 + 1000}
	if st != want {
		t.Fatalf("Stats = %+v, want %+v", st, want)
	}

	on, err := svc.BookingsOn(ctx, "2024-06-04")
	if err != nil {
		t.Fatalf("BookingsOn: %v", err)
	}
	if len(on) != 1 || on[0].ID != a.Booking.ID {
		t.Fatalf("dashboard day must include the check-out day: %+v", on)
	}

	mine, err := svc.Mine(guestCtx("u2"))
	if err != nil || mine.ID != b.Booking.ID {
		t.Fatalf("Mine = %+v, %v", mine, err)
	}
}
