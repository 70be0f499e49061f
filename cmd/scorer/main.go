package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"edge-scorer/internal/backtest"
	"edge-scorer/internal/cfg"
	"edge-scorer/internal/market"
	"edge-scorer/internal/marketdata"
	"edge-scorer/internal/metrics"
	"edge-scorer/internal/ml"
	"edge-scorer/internal/signal"
	"edge-scorer/internal/storage"
)

// scoreOutput is the per-ticker result written to stdout.
type scoreOutput struct {
	Ticker    string                `json:"ticker"`
	Direction signal.Verdict        `json:"direction"`
	Session   market.Session        `json:"session"`
	BullScore float64               `json:"bullScore"`
	BearScore float64               `json:"bearScore"`
	Ensemble  ml.BlendResult        `json:"ensemble"`
	Signals   []signal.SignalRecord `json:"signals"`
}

func main() {
	var (
		tickers    = flag.String("tickers", "", "Comma-separated tickers (overrides config)")
		bundlePath = flag.String("bundle", "", "Score data bundles from a JSON file instead of fetching bars ('-' for stdin)")
		serve      = flag.Bool("serve", false, "Keep the metrics server running after scoring")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if *tickers != "" {
		c.Tickers = strings.Split(*tickers, ",")
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	startMetricsServer(c.MetricsPort)

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage initialization failed")
	}
	defer store.Close()

	predictor := ml.NewPredictorWithMetrics(mw)
	models, err := store.LoadAllModels()
	if err != nil {
		log.Warn().Err(err).Msg("model load failed, scoring rule-based only")
	}
	for _, model := range models {
		predictor.Publish(model)
	}
	ensemble := ml.NewEnsemble(predictor)

	weights := signal.NewWeightTable(nil, nil)
	weights.Update(c.WeightOverrides)
	engine := signal.NewEngineWithMetrics(weights, mw)

	session := market.SessionFor(time.Now())
	out := json.NewEncoder(os.Stdout)

	emit := func(ticker string, bundle *market.DataBundle) {
		score := engine.Score(ticker, bundle, session)
		blend := ensemble.Blend(score.Confidence, score.Features, c.Timeframe, c.ModelVersion)
		mw.ConfidenceObserve(float64(blend.Confidence))

		if err := out.Encode(scoreOutput{
			Ticker:    ticker,
			Direction: score.Direction,
			Session:   session,
			BullScore: score.BullScore,
			BearScore: score.BearScore,
			Ensemble:  blend,
			Signals:   score.Signals,
		}); err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("failed to write result")
		}
	}

	if *bundlePath != "" {
		bundles, err := loadBundles(*bundlePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *bundlePath).Msg("bundle load failed")
		}
		for ticker, bundle := range bundles {
			emit(ticker, bundle)
		}
	} else {
		cache, err := marketdata.NewBarCache(c.CachePath, c.DailyCacheTTL, c.IntradayCacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("bar cache unavailable, fetching without cache")
			cache = nil
		}
		client := marketdata.NewClient(c.BaseURL, c.PolygonKey, c.RESTTimeout, c.RateLimit, cache, mw)

		ctx := context.Background()
		now := time.Now()
		from := now.AddDate(0, 0, -c.LookbackDays)

		for _, ticker := range c.Tickers {
			ticker = strings.TrimSpace(ticker)
			bars, err := client.DailyBars(ctx, ticker, from, now)
			if err != nil {
				log.Error().Err(err).Str("ticker", ticker).Msg("bar fetch failed, skipping ticker")
				continue
			}
			bundle, ok := backtest.Snapshot(bars)
			if !ok {
				log.Warn().Str("ticker", ticker).Int("bars", len(bars)).Msg("not enough history, skipping ticker")
				continue
			}
			emit(ticker, bundle)
		}
	}

	if *serve {
		log.Info().Int("port", c.MetricsPort).Msg("serving metrics, ctrl-c to exit")
		select {}
	}
}

// loadBundles reads a ticker -> data bundle map from a JSON file or stdin.
func loadBundles(path string) (map[string]*market.DataBundle, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var bundles map[string]*market.DataBundle
	if err := json.NewDecoder(r).Decode(&bundles); err != nil {
		return nil, fmt.Errorf("decode bundles: %w", err)
	}
	return bundles, nil
}

// startMetricsServer exposes /metrics and /health in the background.
func startMetricsServer(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
