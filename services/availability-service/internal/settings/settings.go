// Package settings loads the engine defaults from an optional TOML file, then applies
// environment overrides.
package settings

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/config"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/mentorslots/services/availability-service/internal/timeunit"
	"github.com/pelletier/go-toml/v2"
)

// Duration reads Go duration strings ("30s", "5m") from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Settings struct {
	Slots    SlotSettings     `toml:"slots"`
	Calendar CalendarSettings `toml:"calendar"`
	Cache    CacheSettings    `toml:"cache"`
}

type SlotSettings struct {
	DefaultTimezone string   `toml:"default_timezone"`
	DurationMinutes int      `toml:"duration_minutes"`
	HorizonDays     int      `toml:"horizon_days"`
	FetchTimeout    Duration `toml:"fetch_timeout"`
}

type CalendarSettings struct {
	StaleAfter Duration `toml:"stale_after"`
	PollEvery  Duration `toml:"poll_every"`
	BatchSize  int      `toml:"batch_size"`
}

type CacheSettings struct {
	TTL    Duration `toml:"ttl"`
	Prefix string   `toml:"prefix"`
}

func Defaults() Settings {
	return Settings{
		Slots: SlotSettings{
			DefaultTimezone: availability.DefaultTimezone,
			DurationMinutes: availability.DefaultSlotDurationMinutes,
			HorizonDays:     availability.DefaultHorizonDays,
			FetchTimeout:    Duration{3 * time.Second},
		},
		Calendar: CalendarSettings{
			StaleAfter: Duration{30 * time.Minute},
			PollEvery:  Duration{time.Minute},
			BatchSize:  100,
		},
		Cache: CacheSettings{
			TTL:    Duration{30 * time.Second},
			Prefix: "slots",
		},
	}
}

// Load reads path when non-empty, applies AVAILABILITY_* environment overrides and validates.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Settings{}, fmt.Errorf("open settings: %w", err)
		}
		defer f.Close()
		dec := toml.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return Settings{}, fmt.Errorf("decode settings %s: %w", path, err)
		}
	}

	s.Slots.DefaultTimezone = config.String("AVAILABILITY_DEFAULT_TIMEZONE", s.Slots.DefaultTimezone)
	s.Slots.DurationMinutes = config.Int("AVAILABILITY_SLOT_MINUTES", s.Slots.DurationMinutes)
	s.Slots.HorizonDays = config.Int("AVAILABILITY_HORIZON_DAYS", s.Slots.HorizonDays)
	s.Slots.FetchTimeout.Duration = config.Duration("AVAILABILITY_FETCH_TIMEOUT", s.Slots.FetchTimeout.Duration)
	s.Calendar.StaleAfter.Duration = config.Duration("CALENDAR_STALE_AFTER", s.Calendar.StaleAfter.Duration)
	s.Calendar.PollEvery.Duration = config.Duration("CALENDAR_STALENESS_POLL", s.Calendar.PollEvery.Duration)
	s.Cache.TTL.Duration = config.Duration("SLOT_CACHE_TTL", s.Cache.TTL.Duration)

	return s, s.Validate()
}

func (s Settings) Validate() error {
	var errs []error
	if _, err := timeunit.LoadLocation(s.Slots.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("slots.default_timezone: %w", err))
	}
	if _, err := (availability.Input{
		SlotDurationMinutes: s.Slots.DurationMinutes,
		HorizonDays:         s.Slots.HorizonDays,
		Now:                 time.Unix(0, 0),
	}).Normalize(); err != nil {
		errs = append(errs, fmt.Errorf("slots: %w", err))
	}
	if s.Slots.FetchTimeout.Duration <= 0 {
		errs = append(errs, errors.New("slots.fetch_timeout must be positive"))
	}
	if s.Calendar.StaleAfter.Duration <= 0 || s.Calendar.PollEvery.Duration <= 0 {
		errs = append(errs, errors.New("calendar durations must be positive"))
	}
	if s.Cache.TTL.Duration <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	return errors.Join(errs...)
}
