// Package backtest replays historical bars through the signal engine and
// labels each non-neutral score against a forward ATR target, producing the
// training samples the calibrator learns from.
package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"edge-scorer/internal/market"
	"edge-scorer/internal/marketdata"
	"edge-scorer/internal/ml"
	"edge-scorer/internal/signal"
)

// Config controls one replay run.
type Config struct {
	Timeframe    string // dayTrade | swing
	ModelVersion string
	WarmupBars   int // bars skipped before scoring starts
}

// timeframe target policy: profit target in ATR multiples and the forward
// holding window in bars.
type targetPolicy struct {
	atrMult  float64
	holdBars int
}

func policyFor(timeframe string) targetPolicy {
	if timeframe == ml.TimeframeSwing {
		return targetPolicy{atrMult: 2.0, holdBars: 20}
	}
	return targetPolicy{atrMult: 1.0, holdBars: 5}
}

// Result summarizes one replay.
type Result struct {
	Ticker   string
	Samples  []ml.TrainingSample
	Scored   int // bars that produced a directional score
	Neutral  int
	Skipped  int // bars dropped for missing ATR, features, or horizon
	Wins     int
	Losses   int
	WinRate  float64
	Duration time.Duration
}

// Runner replays bars through a signal engine.
type Runner struct {
	engine *signal.Engine
	cfg    Config
}

func NewRunner(engine *signal.Engine, cfg Config) *Runner {
	if cfg.WarmupBars < 50 {
		cfg.WarmupBars = 50
	}
	if cfg.Timeframe == "" {
		cfg.Timeframe = ml.TimeframeDayTrade
	}
	return &Runner{engine: engine, cfg: cfg}
}

// Run scores every bar past warmup and labels the directional ones against
// the forward ATR target.
func (r *Runner) Run(ticker string, bars []marketdata.Bar) (*Result, error) {
	policy := policyFor(r.cfg.Timeframe)
	if len(bars) <= r.cfg.WarmupBars+policy.holdBars {
		return nil, fmt.Errorf("need more than %d bars for %s, got %d",
			r.cfg.WarmupBars+policy.holdBars, ticker, len(bars))
	}

	start := time.Now()
	s := newSeries(bars)
	res := &Result{Ticker: ticker}

	for i := r.cfg.WarmupBars; i < len(bars)-policy.holdBars; i++ {
		atr := s.atr[i]
		if math.IsNaN(atr) || atr <= 0 {
			res.Skipped++
			continue
		}

		bundle := &market.DataBundle{
			Technicals: s.technicals(i),
			Quote: &market.Quote{
				Last:  s.close[i],
				Close: prevClose(s, i),
				High:  s.high[i],
				Low:   s.low[i],
			},
			Regime: s.regime(i),
		}
		barTime := time.UnixMilli(bars[i].Timestamp)
		score := r.engine.Score(ticker, bundle, market.SessionFor(barTime))

		if score.Direction == signal.NeutralScore {
			res.Neutral++
			continue
		}
		if badFeatures(score.Features) {
			res.Skipped++
			continue
		}
		res.Scored++

		label, pnlPct := labelOutcome(s, i, score.Direction, atr, policy)
		if label == 1 {
			res.Wins++
		} else {
			res.Losses++
		}

		res.Samples = append(res.Samples, ml.TrainingSample{
			Features:   score.Features,
			Label:      label,
			Confidence: score.Confidence,
			PnlPct:     pnlPct,
			Timeframe:  r.cfg.Timeframe,
			Version:    r.cfg.ModelVersion,
			Timestamp:  barTime,
		})
	}

	if res.Scored > 0 {
		res.WinRate = float64(res.Wins) / float64(res.Scored)
	}
	res.Duration = time.Since(start)

	log.Info().
		Str("ticker", ticker).
		Str("timeframe", r.cfg.Timeframe).
		Int("scored", res.Scored).
		Int("neutral", res.Neutral).
		Int("skipped", res.Skipped).
		Float64("win_rate", res.WinRate).
		Dur("took", res.Duration).
		Msg("replay complete")

	return res, nil
}

// labelOutcome checks whether the forward window hit the ATR target in the
// scored direction. Label 1 means the target was reached before the hold
// expired; the pnl is the target move on a hit, else the mark at expiry.
func labelOutcome(s *series, i int, dir signal.Verdict, atr float64, policy targetPolicy) (int, float64) {
	entry := s.close[i]
	target := atr * policy.atrMult
	end := i + policy.holdBars

	for j := i + 1; j <= end; j++ {
		if dir == signal.Bullish && s.high[j] >= entry+target {
			return 1, target / entry * 100
		}
		if dir == signal.Bearish && s.low[j] <= entry-target {
			return 1, target / entry * 100
		}
	}

	move := (s.close[end] - entry) / entry * 100
	if dir == signal.Bearish {
		move = -move
	}
	return 0, move
}

func prevClose(s *series, i int) float64 {
	if i > 0 {
		return s.close[i-1]
	}
	return s.close[i]
}

func badFeatures(features []float64) bool {
	for _, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
