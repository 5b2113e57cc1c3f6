package timeunit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// ErrUnknownTimezone is returned for empty or unresolvable IANA identifiers. Callers must not
// substitute UTC: a silent fallback shifts every slot by the zone offset.
var ErrUnknownTimezone = errors.New("unknown timezone")

const locationCacheSize = 512

// Locations resolves IANA identifiers through time.LoadLocation, caching parsed zones.
// Safe for concurrent use.
type Locations struct {
	cache *lru.Cache
}

func NewLocations(size int) *Locations {
	if size <= 0 {
		size = locationCacheSize
	}
	cache, _ := lru.New(size)
	return &Locations{cache: cache}
}

var defaultLocations = NewLocations(locationCacheSize)

// LoadLocation resolves name with the package-level cache.
func LoadLocation(name string) (*time.Location, error) {
	return defaultLocations.Load(name)
}

func (l *Locations) Load(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	// time.LoadLocation("") and ("Local") are valid in Go but never meaningful for stored data.
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	if v, ok := l.cache.Get(name); ok {
		return v.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	l.cache.Add(name, loc)
	return loc, nil
}
