// Package resolver fetches a mentor's rules, exceptions and busy intervals and turns them into
// the slot response served over HTTP and gRPC.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	otelx "github.com/md-rashed-zaman/mentorslots/libs/otel"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/busy"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrUpstream marks a failed read of rules, exceptions or busy intervals. No slots are
	// produced from partial data.
	ErrUpstream = errors.New("availability upstream unavailable")
	// ErrSlotUnavailable is returned by ValidateSlot when the interval is not a free slot.
	ErrSlotUnavailable = errors.New("slot is not available")
)

type RuleReader interface {
	ListByMentor(ctx context.Context, mentorID string, activeOnly bool) ([]model.AvailabilityRule, error)
}

type ExceptionReader interface {
	ListByMentorInRange(ctx context.Context, mentorID string, from, to timeunit.Date) ([]model.AvailabilityException, error)
}

type BusyCollector interface {
	Collect(ctx context.Context, mentorID string, from, to, now time.Time) (busy.Busy, error)
}

// Cache is the optional response cache; *cache.SlotCache implements it.
type Cache interface {
	Version(ctx context.Context, mentorID string) (int64, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Config struct {
	DefaultTimezone        string
	DefaultDurationMinutes int
	DefaultHorizonDays     int
	// FetchTimeout bounds the upstream reads of one request.
	FetchTimeout time.Duration
}

type Resolver struct {
	rules      RuleReader
	exceptions ExceptionReader
	busy       BusyCollector
	cache      Cache
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

type Option func(*Resolver)

// WithCache enables response caching. A nil cache leaves caching off.
func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func New(rules RuleReader, exceptions ExceptionReader, collector BusyCollector, logger *slog.Logger, cfg Config, opts ...Option) *Resolver {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 3 * time.Second
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = availability.DefaultTimezone
	}
	if cfg.DefaultDurationMinutes <= 0 {
		cfg.DefaultDurationMinutes = availability.DefaultSlotDurationMinutes
	}
	if cfg.DefaultHorizonDays <= 0 {
		cfg.DefaultHorizonDays = availability.DefaultHorizonDays
	}
	r := &Resolver{
		rules:      rules,
		exceptions: exceptions,
		busy:       collector,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type Request struct {
	MentorID           string
	DurationMinutes    int
	HorizonDays        int
	ViewerTimezone     string
	IncludeUnavailable bool
}

type Response struct {
	MentorID          string                     `json:"mentor_id"`
	MentorTimezone    string                     `json:"mentor_timezone"`
	ViewerTimezone    string                     `json:"viewer_timezone"`
	GeneratedAt       time.Time                  `json:"generated_at"`
	Slots             []availability.LabeledSlot `json:"slots"`
	Days              []availability.Day         `json:"days"`
	Calendar          []model.CalendarSyncStatus `json:"calendar"`
	SkippedRules      []string                   `json:"skipped_rules,omitempty"`
	SkippedExceptions []string                   `json:"skipped_exceptions,omitempty"`
}

// Resolve generates the mentor's slots as of now.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Response, error) {
	ctx, span := otelx.StartSpan(ctx, "availability.resolve", attribute.String("mentor.id", req.MentorID))
	defer span.End()

	now := r.now().UTC()
	in, err := r.input(req, now)
	if err != nil {
		return Response{}, err
	}

	key, cached := r.lookup(ctx, in)
	if cached != nil {
		return trimPast(*cached, now), nil
	}

	resp, err := r.resolve(ctx, in)
	if err != nil {
		span.RecordError(err)
		return Response{}, err
	}
	r.store(ctx, key, resp)
	return resp, nil
}

func (r *Resolver) input(req Request, now time.Time) (availability.Input, error) {
	if strings.TrimSpace(req.MentorID) == "" {
		return availability.Input{}, fmt.Errorf("%w: mentor_id is required", availability.ErrInvalidInput)
	}
	in := availability.Input{
		MentorID:            req.MentorID,
		SlotDurationMinutes: req.DurationMinutes,
		HorizonDays:         req.HorizonDays,
		Now:                 now,
		ViewerTimezone:      req.ViewerTimezone,
		DefaultTimezone:     r.cfg.DefaultTimezone,
		IncludeUnavailable:  req.IncludeUnavailable,
	}
	if in.SlotDurationMinutes == 0 {
		in.SlotDurationMinutes = r.cfg.DefaultDurationMinutes
	}
	if in.HorizonDays == 0 {
		in.HorizonDays = r.cfg.DefaultHorizonDays
	}
	in, err := in.Normalize()
	if err != nil {
		return availability.Input{}, err
	}
	// A bad viewer zone is the caller's mistake; check it before touching any store.
	if _, err := timeunit.LoadLocation(in.ViewerTimezone); err != nil {
		return availability.Input{}, fmt.Errorf("%w: viewer_timezone: %w", availability.ErrInvalidInput, err)
	}
	return in, nil
}

func (r *Resolver) resolve(ctx context.Context, in availability.Input) (Response, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	// Rule dates are local to zones up to +14h/-12h from UTC, so pad the reads by a day each side.
	today := timeunit.DateOf(in.Now, time.UTC)
	fromDate, toDate := today.AddDays(-1), today.AddDays(in.HorizonDays+1)
	busyFrom, busyTo := in.Now, in.Now.Add(time.Duration(in.HorizonDays+2)*24*time.Hour)

	var b busy.Busy
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		rules, err := r.rules.ListByMentor(gctx, in.MentorID, true)
		if err != nil {
			return fmt.Errorf("rules: %w", err)
		}
		in.Rules = rules
		return nil
	})
	g.Go(func() error {
		exceptions, err := r.exceptions.ListByMentorInRange(gctx, in.MentorID, fromDate, toDate)
		if err != nil {
			return fmt.Errorf("exceptions: %w", err)
		}
		in.Exceptions = exceptions
		return nil
	})
	g.Go(func() error {
		var err error
		if b, err = r.busy.Collect(gctx, in.MentorID, busyFrom, busyTo, in.Now); err != nil {
			return fmt.Errorf("busy: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	in.Busy = b.Intervals

	out, err := availability.GenerateSlots(in)
	if err != nil {
		return Response{}, err
	}
	if len(out.SkippedRules) > 0 || len(out.SkippedExceptions) > 0 {
		r.logger.Warn("skipped malformed availability records",
			"mentor_id", in.MentorID,
			"rules", out.SkippedRules,
			"exceptions", out.SkippedExceptions,
		)
	}
	for _, acct := range b.Accounts {
		if acct.Stale {
			r.logger.Debug("calendar account stale", "mentor_id", in.MentorID, "account_id", acct.AccountID)
		}
	}

	return Response{
		MentorID:          in.MentorID,
		MentorTimezone:    out.MentorTimezone,
		ViewerTimezone:    out.ViewerTimezone,
		GeneratedAt:       in.Now,
		Slots:             out.Labeled,
		Days:              out.Days,
		Calendar:          b.Accounts,
		SkippedRules:      out.SkippedRules,
		SkippedExceptions: out.SkippedExceptions,
	}, nil
}

// lookup returns the cache key and a cached response if present. Cache errors only disable the
// cache for this request.
func (r *Resolver) lookup(ctx context.Context, in availability.Input) (string, *Response) {
	if r.cache == nil {
		return "", nil
	}
	version, err := r.cache.Version(ctx, in.MentorID)
	if err != nil {
		r.logger.Warn("slot cache version lookup failed", "mentor_id", in.MentorID, "err", err)
		return "", nil
	}
	key := cache.Key{
		MentorID:           in.MentorID,
		Version:            version,
		DurationMinutes:    in.SlotDurationMinutes,
		HorizonDays:        in.HorizonDays,
		ViewerTimezone:     in.ViewerTimezone,
		IncludeUnavailable: in.IncludeUnavailable,
		Now:                in.Now,
	}.String()
	b, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("slot cache read failed", "mentor_id", in.MentorID, "err", err)
		return key, nil
	}
	if !ok {
		return key, nil
	}
	var resp Response
	if err := json.Unmarshal(b, &resp); err != nil {
		r.logger.Warn("slot cache entry unreadable", "mentor_id", in.MentorID, "err", err)
		return key, nil
	}
	return key, &resp
}

func (r *Resolver) store(ctx context.Context, key string, resp Response) {
	if r.cache == nil || key == "" {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, b); err != nil {
		r.logger.Warn("slot cache write failed", "mentor_id", resp.MentorID, "err", err)
	}
}

// trimPast drops slots that started since the response was generated.
func trimPast(resp Response, now time.Time) Response {
	kept := resp.Slots[:0:0]
	for _, s := range resp.Slots {
		if s.Start.After(now) {
			kept = append(kept, s)
		}
	}
	resp.Slots = kept
	resp.Days = availability.GroupByDate(kept)
	return resp
}

// ValidateSlot checks that [start, end) is exactly one currently available slot of the given
// duration. It is a point-in-time read; the booking side still has to reserve atomically.
func (r *Resolver) ValidateSlot(ctx context.Context, mentorID string, start, end time.Time) error {
	if !end.After(start) {
		return fmt.Errorf("%w: end must be after start", availability.ErrInvalidInput)
	}
	d := end.Sub(start)
	if d%time.Minute != 0 || d > 24*time.Hour {
		return fmt.Errorf("%w: slot length must be whole minutes up to a day", availability.ErrInvalidInput)
	}
	now := r.now().UTC()
	in, err := r.input(Request{MentorID: mentorID, DurationMinutes: int(d / time.Minute)}, now)
	if err != nil {
		return err
	}
	if horizon := int(start.Sub(now).Hours()/24) + 2; horizon > in.HorizonDays {
		in.HorizonDays = min(horizon, availability.MaxHorizonDays)
	}
	resp, err := r.resolve(ctx, in)
	if err != nil {
		return err
	}
	for _, s := range resp.Slots {
		if s.Available && s.Start.Equal(start) && s.End.Equal(end) {
			return nil
		}
	}
	return ErrSlotUnavailable
}
