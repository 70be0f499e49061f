package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"edge-scorer/internal/backtest"
	"edge-scorer/internal/cfg"
	"edge-scorer/internal/marketdata"
	"edge-scorer/internal/metrics"
	"edge-scorer/internal/ml"
	"edge-scorer/internal/optimize"
	"edge-scorer/internal/signal"
	"edge-scorer/internal/storage"
)

func main() {
	var (
		tickers     = flag.String("tickers", "", "Comma-separated tickers (overrides config)")
		timeframe   = flag.String("timeframe", "", "dayTrade or swing (overrides config)")
		version     = flag.String("version", "", "Model version tag (overrides config)")
		lookback    = flag.Int("lookback", 0, "Lookback days (overrides config)")
		optimizeRun = flag.Bool("optimize", false, "Grid-search signal weights instead of training")
		optimizeOut = flag.String("optimize-out", "", "Write the optimized weight table as JSON to this path")
		logLevel    = flag.String("log-level", "info", "Log level: debug, info, warn, error")
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
	if *timeframe != "" {
		c.Timeframe = *timeframe
	}
	if *version != "" {
		c.ModelVersion = *version
	}
	if *lookback > 0 {
		c.LookbackDays = *lookback
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	cache, err := marketdata.NewBarCache(c.CachePath, c.DailyCacheTTL, c.IntradayCacheTTL)
	if err != nil {
		log.Warn().Err(err).Msg("bar cache unavailable, fetching without cache")
		cache = nil
	}
	client := marketdata.NewClient(c.BaseURL, c.PolygonKey, c.RESTTimeout, c.RateLimit, cache, mw)

	weights := signal.NewWeightTable(nil, nil)
	weights.Update(c.WeightOverrides)

	ctx := context.Background()
	to := time.Now()
	from := to.AddDate(0, 0, -c.LookbackDays)

	histories := make(map[string][]marketdata.Bar, len(c.Tickers))
	for _, ticker := range c.Tickers {
		ticker = strings.TrimSpace(ticker)
		bars, err := client.DailyBars(ctx, ticker, from, to)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("bar fetch failed, skipping ticker")
			continue
		}
		histories[ticker] = bars
	}
	if len(histories) == 0 {
		log.Fatal().Msg("no bar histories fetched")
	}

	if *optimizeRun {
		runOptimization(histories, weights.Snapshot(), c, *optimizeOut)
		return
	}

	engine := signal.NewEngineWithMetrics(weights, mw)
	runner := backtest.NewRunner(engine, backtest.Config{
		Timeframe:    c.Timeframe,
		ModelVersion: c.ModelVersion,
		WarmupBars:   c.WarmupBars,
	})

	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage initialization failed")
	}
	defer store.Close()

	var samples []ml.TrainingSample
	for ticker, bars := range histories {
		res, err := runner.Run(ticker, bars)
		if err != nil {
			log.Error().Err(err).Str("ticker", ticker).Msg("replay failed, skipping ticker")
			continue
		}
		samples = append(samples, res.Samples...)

		for _, sample := range res.Samples {
			if err := store.AppendSample(sample); err != nil {
				log.Warn().Err(err).Str("ticker", ticker).Msg("failed to persist sample")
				break
			}
		}
	}

	if len(samples) == 0 {
		log.Fatal().Msg("no training samples generated")
	}

	trainer := ml.NewTrainerWithMetrics(mw)
	model, ok := trainer.Train(samples, c.Timeframe, c.ModelVersion)
	if !ok {
		log.Fatal().Int("samples", len(samples)).Msg("training skipped, not enough samples")
	}

	if err := store.SaveModel(model); err != nil {
		log.Fatal().Err(err).Msg("failed to persist model")
	}

	fmt.Printf("trained %s model on %d samples, in-sample accuracy %.1f%%\n",
		model.Key(), model.Samples, model.Accuracy*100)

	fmt.Println("\ntop feature weights:")
	for i, r := range model.FeatureImportance {
		if i >= 10 {
			break
		}
		fmt.Printf("  %-16s %+.4f (%.2f)\n", r.Name, r.Weight, r.Importance)
	}

	suggestions := ml.SuggestWeights(model)
	if len(suggestions) > 0 {
		fmt.Println("\nadvisory weight suggestions (not applied):")
		for i, s := range suggestions {
			if i >= 10 {
				break
			}
			fmt.Printf("  %-24s -> %d (from %s, weight %+.4f)\n", s.SignalKey, s.Suggested, s.Feature, s.Weight)
		}
	}
}

// runOptimization grid-searches signal weights over the fetched histories and
// reports the result. Tuned weights are written out for review, never applied.
func runOptimization(histories map[string][]marketdata.Bar, base map[string]float64, c cfg.Settings, outPath string) {
	opt := optimize.New(histories, base, optimize.Config{
		Timeframe:  c.Timeframe,
		WarmupBars: c.WarmupBars,
	})
	report, err := opt.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("weight optimization failed")
	}

	fmt.Printf("baseline:  score %.4f on %d trades (win rate %.1f%%)\n",
		report.Baseline.Score, report.Baseline.Trades, report.Baseline.WinRate*100)
	fmt.Printf("optimized: score %.4f on %d trades (win rate %.1f%%)\n",
		report.Optimized.Score, report.Optimized.Trades, report.Optimized.WinRate*100)

	if len(report.Changes) == 0 {
		fmt.Println("\nno weight changes beat the baseline")
	} else {
		fmt.Println("\nweight changes:")
		for _, ch := range report.Changes {
			fmt.Printf("  %-24s %g -> %g\n", ch.Key, ch.From, ch.To)
		}
	}

	if outPath == "" {
		return
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to encode optimization report")
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("failed to write optimization report")
	}
	fmt.Printf("\nreport written to %s\n", outPath)
}
