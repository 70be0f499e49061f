package marketdata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// BarCache is an on-disk JSON cache of fetched bar ranges. Daily bars stay
// fresh longer than intraday ones since the close only moves once a day.
type BarCache struct {
	dir         string
	dailyTTL    time.Duration
	intradayTTL time.Duration
}

type cacheEntry struct {
	FetchedAt time.Time `json:"fetchedAt"`
	Bars      []Bar     `json:"bars"`
}

func NewBarCache(dir string, dailyTTL, intradayTTL time.Duration) (*BarCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if dailyTTL <= 0 {
		dailyTTL = 12 * time.Hour
	}
	if intradayTTL <= 0 {
		intradayTTL = 6 * time.Hour
	}
	return &BarCache{dir: dir, dailyTTL: dailyTTL, intradayTTL: intradayTTL}, nil
}

func (c *BarCache) path(ticker string, multiplier int, timespan string, from, to time.Time) string {
	name := fmt.Sprintf("%s_%d%s_%s_%s.json",
		ticker, multiplier, timespan, from.Format("20060102"), to.Format("20060102"))
	return filepath.Join(c.dir, name)
}

func (c *BarCache) ttl(timespan string) time.Duration {
	if timespan == TimespanDay {
		return c.dailyTTL
	}
	return c.intradayTTL
}

// Get returns the cached bars for the exact range, or ok=false when the file
// is missing, stale, or unreadable.
func (c *BarCache) Get(ticker string, multiplier int, timespan string, from, to time.Time) ([]Bar, bool) {
	path := c.path(ticker, multiplier, timespan, from, to)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("discarding unreadable cache file")
		os.Remove(path)
		return nil, false
	}
	if time.Since(entry.FetchedAt) > c.ttl(timespan) {
		return nil, false
	}
	return entry.Bars, true
}

// Put stores bars for the range, overwriting any previous entry.
func (c *BarCache) Put(ticker string, multiplier int, timespan string, from, to time.Time, bars []Bar) error {
	entry := cacheEntry{FetchedAt: time.Now(), Bars: bars}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return os.WriteFile(c.path(ticker, multiplier, timespan, from, to), data, 0o644)
}
