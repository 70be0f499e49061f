package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every variable Load reads so tests see only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "POLYGON_API_KEY", "TICKERS", "POLYGON_BASE_URL",
		"DATA_PATH", "CACHE_PATH", "TIMEFRAME", "MODEL_VERSION",
		"LOOKBACK_DAYS", "WARMUP_BARS", "RATE_LIMIT", "DAILY_CACHE_TTL",
		"INTRADAY_CACHE_TTL", "METRICS_PORT", "REST_TIMEOUT", "WEIGHT_PROFILE",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLYGON_API_KEY", "test-key")

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.PolygonKey != "test-key" {
		t.Errorf("key = %q", s.PolygonKey)
	}
	if len(s.Tickers) != 1 || s.Tickers[0] != "SPY" {
		t.Errorf("default tickers = %v", s.Tickers)
	}
	if s.Timeframe != "dayTrade" {
		t.Errorf("default timeframe = %q", s.Timeframe)
	}
	if s.LookbackDays != 365 || s.WarmupBars != 50 {
		t.Errorf("defaults: lookback %d warmup %d", s.LookbackDays, s.WarmupBars)
	}
	if s.RateLimit != 4 {
		t.Errorf("default rate limit = %v", s.RateLimit)
	}
	if s.DailyCacheTTL != 12*time.Hour || s.IntradayCacheTTL != 6*time.Hour {
		t.Errorf("cache TTLs: %v %v", s.DailyCacheTTL, s.IntradayCacheTTL)
	}
	if s.MetricsPort != 8080 || s.RESTTimeout != 10*time.Second {
		t.Errorf("system defaults: %d %v", s.MetricsPort, s.RESTTimeout)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLYGON_API_KEY", "test-key")
	t.Setenv("TICKERS", "AAPL,TSLA")
	t.Setenv("TIMEFRAME", "swing")
	t.Setenv("LOOKBACK_DAYS", "730")
	t.Setenv("RATE_LIMIT", "10")
	t.Setenv("REST_TIMEOUT", "30s")

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Tickers) != 2 || s.Tickers[0] != "AAPL" || s.Tickers[1] != "TSLA" {
		t.Errorf("tickers = %v", s.Tickers)
	}
	if s.Timeframe != "swing" || s.LookbackDays != 730 || s.RateLimit != 10 {
		t.Errorf("overrides not applied: %+v", s)
	}
	if s.RESTTimeout != 30*time.Second {
		t.Errorf("timeout = %v", s.RESTTimeout)
	}
}

func TestLoadEnvMissingKey(t *testing.T) {
	clearEnv(t)

	_, err := Load()
	if err == nil {
		t.Fatal("expected an error without an API key")
	}
	if !strings.Contains(err.Error(), "POLYGON_API_KEY") {
		t.Errorf("error should name the missing variable: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)

	content := `
api:
  key: yaml-key
  baseURL: https://example.test
scoring:
  tickers: [NVDA, AMD]
  timeframe: swing
  modelVersion: v2
  weights:
    ema_alignment: 6
    rsi_position: 2.5
data:
  lookbackDays: 500
  warmupBars: 60
  rateLimit: 2
  dailyCacheTTL: 24h
system:
  metricsPort: 9090
  restTimeout: 15s
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.PolygonKey != "yaml-key" || s.BaseURL != "https://example.test" {
		t.Errorf("api section: %q %q", s.PolygonKey, s.BaseURL)
	}
	if len(s.Tickers) != 2 || s.Tickers[0] != "NVDA" {
		t.Errorf("tickers = %v", s.Tickers)
	}
	if s.Timeframe != "swing" || s.ModelVersion != "v2" {
		t.Errorf("scoring: %q %q", s.Timeframe, s.ModelVersion)
	}
	if s.LookbackDays != 500 || s.WarmupBars != 60 || s.RateLimit != 2 {
		t.Errorf("data: %d %d %v", s.LookbackDays, s.WarmupBars, s.RateLimit)
	}
	if s.DailyCacheTTL != 24*time.Hour {
		t.Errorf("daily TTL = %v", s.DailyCacheTTL)
	}
	if s.IntradayCacheTTL != 6*time.Hour {
		t.Errorf("unset intraday TTL falls back to 6h, got %v", s.IntradayCacheTTL)
	}
	if s.MetricsPort != 9090 || s.RESTTimeout != 15*time.Second {
		t.Errorf("system: %d %v", s.MetricsPort, s.RESTTimeout)
	}
	if s.WeightOverrides["ema_alignment"] != 6 || s.WeightOverrides["rsi_position"] != 2.5 {
		t.Errorf("weights: %v", s.WeightOverrides)
	}
}

func TestWeightProfiles(t *testing.T) {
	clearEnv(t)

	content := `
api:
  key: yaml-key
scoring:
  weights:
    ema_alignment: 5
  weightProfile: aggressive
  weightProfiles:
    aggressive:
      ema_alignment: 8
      volume_spike: 4
    conservative:
      ema_alignment: 3
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.WeightOverrides["ema_alignment"] != 8 || s.WeightOverrides["volume_spike"] != 4 {
		t.Errorf("selected profile not applied: %v", s.WeightOverrides)
	}

	// Env selects a different profile.
	t.Setenv("WEIGHT_PROFILE", "conservative")
	s, err = Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.WeightOverrides["ema_alignment"] != 3 {
		t.Errorf("env profile not applied: %v", s.WeightOverrides)
	}

	// Unknown profile is a config error.
	t.Setenv("WEIGHT_PROFILE", "missing")
	if _, err := Load(); err == nil {
		t.Error("undefined profile must fail to load")
	}
}

func TestEnvBeatsYAML(t *testing.T) {
	clearEnv(t)

	content := `
api:
  key: yaml-key
scoring:
  tickers: [NVDA]
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("POLYGON_API_KEY", "env-key")
	t.Setenv("TICKERS", "SPY,QQQ")

	s, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if s.PolygonKey != "env-key" {
		t.Errorf("env key must win, got %q", s.PolygonKey)
	}
	if len(s.Tickers) != 2 || s.Tickers[0] != "SPY" {
		t.Errorf("env tickers must win, got %v", s.Tickers)
	}
}

func TestValidateSettings(t *testing.T) {
	valid := func() Settings {
		return Settings{
			PolygonKey:   "k",
			Tickers:      []string{"SPY"},
			BaseURL:      "https://api.polygon.io",
			Timeframe:    "dayTrade",
			LookbackDays: 365,
			WarmupBars:   50,
			RateLimit:    4,
			MetricsPort:  8080,
			RESTTimeout:  10 * time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"missing key", func(s *Settings) { s.PolygonKey = "" }, "API key"},
		{"no tickers", func(s *Settings) { s.Tickers = nil }, "ticker"},
		{"blank ticker", func(s *Settings) { s.Tickers = []string{"SPY", " "} }, "empty ticker"},
		{"bad timeframe", func(s *Settings) { s.Timeframe = "scalp" }, "timeframe"},
		{"lookback too long", func(s *Settings) { s.LookbackDays = 5000 }, "lookback"},
		{"warmup too small", func(s *Settings) { s.WarmupBars = 10 }, "warmup"},
		{"zero rate limit", func(s *Settings) { s.RateLimit = 0 }, "rate limit"},
		{"privileged port", func(s *Settings) { s.MetricsPort = 80 }, "port"},
		{"timeout too long", func(s *Settings) { s.RESTTimeout = 2 * time.Minute }, "timeout"},
		{"negative weight", func(s *Settings) { s.WeightOverrides = map[string]float64{"rsi_position": -1} }, "non-negative"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(&s)
			err := validateSettings(&s)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
