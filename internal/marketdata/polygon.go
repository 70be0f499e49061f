// Package marketdata fetches historical aggregate bars from the Polygon REST
// API, with an on-disk JSON cache so repeated backtest runs stay inside the
// free-tier request budget.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Bar is one OHLCV aggregate.
type Bar struct {
	Timestamp int64   `json:"t"` // epoch millis
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw,omitempty"`
}

// Timespan values accepted by the aggregates endpoint.
const (
	TimespanMinute = "minute"
	TimespanHour   = "hour"
	TimespanDay    = "day"
)

// ClientMetrics is the metrics surface the client reports to.
type ClientMetrics interface {
	BarsFetchedInc()
	CacheHitsInc()
	ErrorsInc()
}

// Client is a rate-limited Polygon aggregates client backed by a bar cache.
type Client struct {
	rest    *resty.Client
	base    string
	apiKey  string
	limiter *rate.Limiter
	cache   *BarCache
	metrics ClientMetrics
}

// NewClient builds a client. cache may be nil to disable caching; reqPerSec
// guards the upstream rate limit.
func NewClient(base, apiKey string, timeout time.Duration, reqPerSec float64, cache *BarCache, metrics ClientMetrics) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second)
	}
	if reqPerSec <= 0 {
		reqPerSec = 4
	}
	return &Client{
		rest:    r,
		base:    base,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), 1),
		cache:   cache,
		metrics: metrics,
	}
}

type aggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		T  int64   `json:"t"`
		O  float64 `json:"o"`
		H  float64 `json:"h"`
		L  float64 `json:"l"`
		C  float64 `json:"c"`
		V  float64 `json:"v"`
		VW float64 `json:"vw"`
	} `json:"results"`
	NextURL string `json:"next_url"`
	Error   string `json:"error"`
}

// Bars returns aggregate bars for the ticker over [from, to], ascending by
// timestamp. Cached ranges that are still fresh are served without a network
// call.
func (c *Client) Bars(ctx context.Context, ticker string, multiplier int, timespan string, from, to time.Time) ([]Bar, error) {
	if c.cache != nil {
		if bars, ok := c.cache.Get(ticker, multiplier, timespan, from, to); ok {
			if c.metrics != nil {
				c.metrics.CacheHitsInc()
			}
			return bars, nil
		}
	}

	var bars []Bar
	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		c.base, ticker, multiplier, timespan,
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	for url != "" {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var page aggsResponse
		resp, err := c.rest.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"adjusted": "true",
				"sort":     "asc",
				"limit":    "50000",
				"apiKey":   c.apiKey,
			}).
			SetResult(&page).
			Get(url)
		if err != nil {
			if c.metrics != nil {
				c.metrics.ErrorsInc()
			}
			return nil, fmt.Errorf("fetch aggregates for %s: %w", ticker, err)
		}
		if resp.StatusCode() != 200 {
			if c.metrics != nil {
				c.metrics.ErrorsInc()
			}
			return nil, fmt.Errorf("fetch aggregates for %s: status %d: %s", ticker, resp.StatusCode(), page.Error)
		}

		for _, r := range page.Results {
			bars = append(bars, Bar{
				Timestamp: r.T,
				Open:      r.O,
				High:      r.H,
				Low:       r.L,
				Close:     r.C,
				Volume:    r.V,
				VWAP:      r.VW,
			})
		}
		url = page.NextURL
	}

	if c.metrics != nil {
		c.metrics.BarsFetchedInc()
	}
	log.Debug().
		Str("ticker", ticker).
		Str("timespan", timespan).
		Int("bars", len(bars)).
		Msg("fetched aggregates")

	if c.cache != nil {
		if err := c.cache.Put(ticker, multiplier, timespan, from, to, bars); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("failed to cache bars")
		}
	}
	return bars, nil
}

// DailyBars is a convenience wrapper for 1-day aggregates.
func (c *Client) DailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	return c.Bars(ctx, ticker, 1, TimespanDay, from, to)
}
