package calsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"staycal/internal/availability"
	"staycal/internal/ics"
	appLog "staycal/internal/log"
	"staycal/internal/model"
)

var (
	// ErrInactive is returned when syncing a disabled entry.
	ErrInactive = errors.New("calendar sync entry is inactive")
	// ErrInvalidEntry covers a missing platform or a non-http(s) URL.
	ErrInvalidEntry = errors.New("invalid calendar sync entry")
)

// Store is the persistence the service needs.
type Store interface {
	AddCalendarSync(ctx context.Context, c *model.CalendarSync) error
	ListCalendarSyncs(ctx context.Context) ([]model.CalendarSync, error)
	GetCalendarSync(ctx context.Context, id string) (model.CalendarSync, error)
	DeleteCalendarSync(ctx context.Context, id string) error
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

// Syncer pulls one external calendar into the availability engine.
type Syncer interface {
	Sync(ctx context.Context, entry model.CalendarSync) error
}

// StampSyncer does nothing; SyncNow still records last_synced_at.
type StampSyncer struct{}

func (StampSyncer) Sync(context.Context, model.CalendarSync) error { return nil }

// FeedFetcher is the part of ics.Fetcher FeedSyncer needs.
type FeedFetcher interface {
	FetchOne(ctx context.Context, src ics.Source) (ics.FetchResult, error)
}

// FeedSyncer fetches the entry's iCal URL and replaces that entry's
// intervals in the calendar. A failed fetch or parse leaves the previous
// intervals in place.
type FeedSyncer struct {
	Fetcher  FeedFetcher
	Calendar *availability.Calendar
	Options  ics.ParseOptions
}

func (f FeedSyncer) Sync(ctx context.Context, entry model.CalendarSync) error {
	res, err := f.Fetcher.FetchOne(ctx, ics.Source{ID: entry.ID, URL: entry.ICalURL})
	if err != nil {
		return err
	}
	opts := f.Options
	if opts.Location == nil {
		opts.Location = f.Calendar.Location()
	}
	ivs, err := ics.Parse(res.Body, opts)
	if err != nil {
		return err
	}
	f.Calendar.ReplaceSource(entry.ID, ivs)
	appLog.Info("external calendar imported", "id", entry.ID, "platform", entry.Platform, "intervals", len(ivs), "cached", res.FromCache)
	return nil
}

// AddRequest is the owner form for a new entry.
type AddRequest struct {
	Platform string `json:"platform" validate:"required,max=64"`
	ICalURL  string `json:"ical_url" validate:"required,url,max=2048"`
	IsActive *bool  `json:"is_active"`
}

// Service manages external calendar entries.
type Service struct {
	store    Store
	syncer   Syncer
	cal      *availability.Calendar
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the service. A nil syncer means StampSyncer.
func NewService(store Store, syncer Syncer, cal *availability.Calendar) *Service {
	if syncer == nil {
		syncer = StampSyncer{}
	}
	return &Service{
		store:    store,
		syncer:   syncer,
		cal:      cal,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) Add(ctx context.Context, req AddRequest) (model.CalendarSync, error) {
	req.Platform = strings.TrimSpace(req.Platform)
	req.ICalURL = strings.TrimSpace(req.ICalURL)
	if err := s.validate.Struct(req); err != nil {
		return model.CalendarSync{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if u, err := url.Parse(req.ICalURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return model.CalendarSync{}, fmt.Errorf("%w: ical_url must be http(s)", ErrInvalidEntry)
	}

	entry := model.CalendarSync{
		Platform: req.Platform,
		ICalURL:  req.ICalURL,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := s.store.AddCalendarSync(ctx, &entry); err != nil {
		return model.CalendarSync{}, err
	}
	appLog.Info("calendar sync added", "id", entry.ID, "platform", entry.Platform)
	return entry, nil
}

func (s *Service) List(ctx context.Context) ([]model.CalendarSync, error) {
	return s.store.ListCalendarSyncs(ctx)
}

// Remove deletes the entry and drops its imported intervals.
func (s *Service) Remove(ctx context.Context, id string) error {
	if err := s.store.DeleteCalendarSync(ctx, id); err != nil {
		return err
	}
	if s.cal != nil {
		s.cal.RemoveSource(id)
	}
	appLog.Info("calendar sync removed", "id", id)
	return nil
}

// SyncNow runs the syncer for one entry and stamps last_synced_at.
func (s *Service) SyncNow(ctx context.Context, id string) (model.CalendarSync, error) {
	entry, err := s.store.GetCalendarSync(ctx, id)
	if err != nil {
		return model.CalendarSync{}, err
	}
	if !entry.IsActive {
		return entry, ErrInactive
	}
	if err := s.syncer.Sync(ctx, entry); err != nil {
		appLog.Error("calendar sync failed", err, "id", id, "platform", entry.Platform)
		return entry, err
	}

	at := s.now().UTC()
	if err := s.store.MarkSynced(ctx, id, at); err != nil {
		return entry, err
	}
	entry.LastSyncedAt = &at
	return entry, nil
}

// SyncAll syncs every active entry and returns the joined failures.
func (s *Service) SyncAll(ctx context.Context) error {
	entries, err := s.store.ListCalendarSyncs(ctx)
	if err != nil {
		return err
	}

	var errs []error
	synced := 0
	for _, e := range entries {
		if !e.IsActive {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.SyncNow(ctx, e.ID); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.ID, err))
			continue
		}
		synced++
	}
	appLog.Info("calendar sync run finished", "synced", synced, "failed", len(errs))
	return errors.Join(errs...)
}
