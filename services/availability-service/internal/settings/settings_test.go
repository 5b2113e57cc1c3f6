package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Slots.DurationMinutes != 60 || s.Slots.HorizonDays != 14 || s.Slots.DefaultTimezone != "UTC" {
		t.Fatalf("unexpected defaults %+v", s.Slots)
	}
	if s.Calendar.StaleAfter.Duration != 30*time.Minute {
		t.Fatalf("unexpected stale threshold %s", s.Calendar.StaleAfter)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	t.Setenv("AVAILABILITY_HORIZON_DAYS", "30")
	s, err := Load(filepath.Join("testdata", "availability.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Slots.DefaultTimezone != "Europe/Berlin" || s.Slots.DurationMinutes != 45 {
		t.Fatalf("file values not applied: %+v", s.Slots)
	}
	if s.Slots.HorizonDays != 30 {
		t.Fatalf("env override not applied, horizon=%d", s.Slots.HorizonDays)
	}
	if s.Cache.TTL.Duration != 10*time.Second || s.Cache.Prefix != "avail" || s.Calendar.BatchSize != 20 {
		t.Fatalf("unexpected cache/calendar settings %+v %+v", s.Cache, s.Calendar)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	body := "[slots]\ndefault_timezone = \"Mars/Olympus\"\nhorizon_days = 500\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_timezone") || !strings.Contains(err.Error(), "horizon") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.toml")
	if err := os.WriteFile(path, []byte("[slots]\nhorizon = 7\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}
