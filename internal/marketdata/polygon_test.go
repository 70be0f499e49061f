package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type countingMetrics struct {
	fetched, hits, errors int
}

func (m *countingMetrics) BarsFetchedInc() { m.fetched++ }
func (m *countingMetrics) CacheHitsInc()   { m.hits++ }
func (m *countingMetrics) ErrorsInc()      { m.errors++ }

func TestClientBars(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apiKey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("sort") != "asc" {
			t.Errorf("missing sort param in %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK","results":[
			{"t":1700000000000,"o":100,"h":101,"l":99,"c":100.5,"v":1000000,"vw":100.2},
			{"t":1700086400000,"o":100.5,"h":102,"l":100,"c":101.5,"v":900000,"vw":101.1}
		]}`)
	}))
	defer srv.Close()

	metrics := &countingMetrics{}
	client := NewClient(srv.URL, "test-key", 5*time.Second, 100, nil, metrics)

	from := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC)
	bars, err := client.DailyBars(context.Background(), "SPY", from, to)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars", len(bars))
	}
	if bars[0].Close != 100.5 || bars[1].High != 102 {
		t.Errorf("bars decoded wrong: %+v", bars)
	}
	if metrics.fetched != 1 || metrics.errors != 0 {
		t.Errorf("metrics: %+v", metrics)
	}
}

func TestClientBarsPagination(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cursor") == "page2" {
			fmt.Fprint(w, `{"status":"OK","results":[{"t":2,"c":2}]}`)
			return
		}
		fmt.Fprintf(w, `{"status":"OK","results":[{"t":1,"c":1}],"next_url":"%s/v2/aggs?cursor=page2"}`, srv.URL)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "k", 5*time.Second, 100, nil, nil)
	bars, err := client.Bars(context.Background(), "SPY", 1, TimespanDay, time.Now().AddDate(0, 0, -2), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[0].Timestamp != 1 || bars[1].Timestamp != 2 {
		t.Errorf("pagination broken: %+v", bars)
	}
}

func TestClientBarsUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"status":"ERROR","error":"unknown API key"}`)
	}))
	defer srv.Close()

	metrics := &countingMetrics{}
	client := NewClient(srv.URL, "bad", 5*time.Second, 100, nil, metrics)
	_, err := client.Bars(context.Background(), "SPY", 1, TimespanDay, time.Now().AddDate(0, 0, -2), time.Now())
	if err == nil {
		t.Fatal("expected an error on 403")
	}
	if metrics.errors != 1 {
		t.Errorf("error counter = %d", metrics.errors)
	}
}

func TestClientServesFromCache(t *testing.T) {
	t.Parallel()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"OK","results":[{"t":1,"c":1}]}`)
	}))
	defer srv.Close()

	cache, err := NewBarCache(t.TempDir(), time.Hour, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	metrics := &countingMetrics{}
	client := NewClient(srv.URL, "k", 5*time.Second, 100, cache, metrics)

	from := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC)
	to := time.Date(2023, 11, 16, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if _, err := client.DailyBars(ctx, "SPY", from, to); err != nil {
		t.Fatal(err)
	}
	if _, err := client.DailyBars(ctx, "SPY", from, to); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("second request must come from cache, got %d upstream calls", calls)
	}
	if metrics.hits != 1 {
		t.Errorf("cache hits = %d", metrics.hits)
	}
}
