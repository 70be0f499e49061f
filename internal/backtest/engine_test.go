package backtest

import (
	"math"
	"testing"

	"edge-scorer/internal/marketdata"
	"edge-scorer/internal/ml"
	"edge-scorer/internal/signal"
)

func TestPolicyFor(t *testing.T) {
	t.Parallel()

	day := policyFor(ml.TimeframeDayTrade)
	if day.atrMult != 1.0 || day.holdBars != 5 {
		t.Errorf("dayTrade policy: %+v", day)
	}
	swing := policyFor(ml.TimeframeSwing)
	if swing.atrMult != 2.0 || swing.holdBars != 20 {
		t.Errorf("swing policy: %+v", swing)
	}
}

func TestLabelOutcome(t *testing.T) {
	t.Parallel()

	s := &series{
		close: []float64{100, 100, 100, 100, 100, 100, 98},
		high:  []float64{100, 100, 103, 100, 100, 100, 100},
		low:   []float64{100, 100, 100, 100, 100, 100, 96},
	}
	policy := targetPolicy{atrMult: 1.0, holdBars: 5}

	// Bullish from bar 0 with ATR 2: high 103 at bar 2 clears 100+2.
	label, pnl := labelOutcome(s, 0, signal.Bullish, 2, policy)
	if label != 1 {
		t.Errorf("bullish target hit should label 1, got %d", label)
	}
	if math.Abs(pnl-2.0) > 1e-9 {
		t.Errorf("winning pnl is the target move, got %v", pnl)
	}

	// Bearish from bar 0: low never reaches 98 within the hold, close at
	// expiry is 100, so the trade is flat and labeled 0.
	label, pnl = labelOutcome(s, 0, signal.Bearish, 2, policy)
	if label != 0 {
		t.Errorf("missed bearish target should label 0, got %d", label)
	}
	if pnl != 0 {
		t.Errorf("flat close yields 0 pnl, got %v", pnl)
	}

	// Bearish from bar 1: low 96 at bar 6 clears 100-2.
	label, _ = labelOutcome(s, 1, signal.Bearish, 2, policy)
	if label != 1 {
		t.Errorf("bearish target hit should label 1, got %d", label)
	}
}

// trendingBars builds a steady uptrend with enough history for warmup.
func trendingBars(n int) []marketdata.Bar {
	bars := make([]marketdata.Bar, n)
	price := 100.0
	for i := range bars {
		drift := 0.4
		if i%7 == 0 {
			drift = -0.3
		}
		open := price
		price += drift
		bars[i] = marketdata.Bar{
			Timestamp: int64(1700000000000) + int64(i)*86400000,
			Open:      open,
			High:      math.Max(open, price) + 0.5,
			Low:       math.Min(open, price) - 0.5,
			Close:     price,
			Volume:    1e6 + float64(i%5)*1e5,
		}
	}
	return bars
}

func TestRunnerRun(t *testing.T) {
	t.Parallel()

	engine := signal.NewEngine(nil)
	runner := NewRunner(engine, Config{Timeframe: ml.TimeframeDayTrade, WarmupBars: 50})

	bars := trendingBars(160)
	res, err := runner.Run("TEST", bars)
	if err != nil {
		t.Fatal(err)
	}

	evaluated := res.Scored + res.Neutral + res.Skipped
	want := len(bars) - 50 - 5
	if evaluated != want {
		t.Errorf("expected %d evaluated bars, got %d", want, evaluated)
	}
	if len(res.Samples) != res.Scored {
		t.Errorf("every directional score becomes a sample: %d vs %d", len(res.Samples), res.Scored)
	}
	if res.Wins+res.Losses != res.Scored {
		t.Errorf("wins+losses must equal scored: %d+%d vs %d", res.Wins, res.Losses, res.Scored)
	}
	for _, sample := range res.Samples {
		if len(sample.Features) != 42 {
			t.Fatalf("sample feature width %d", len(sample.Features))
		}
		if sample.Label != 0 && sample.Label != 1 {
			t.Fatalf("label out of range: %d", sample.Label)
		}
		if sample.Timeframe != ml.TimeframeDayTrade {
			t.Fatalf("timeframe %q", sample.Timeframe)
		}
	}
}

func TestRunnerRejectsShortHistory(t *testing.T) {
	t.Parallel()

	runner := NewRunner(signal.NewEngine(nil), Config{Timeframe: ml.TimeframeDayTrade})
	if _, err := runner.Run("TEST", trendingBars(55)); err == nil {
		t.Error("expected an error for too-short history")
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	if _, ok := Snapshot(trendingBars(20)); ok {
		t.Error("short history must not produce a snapshot")
	}

	bundle, ok := Snapshot(trendingBars(120))
	if !ok {
		t.Fatal("expected a snapshot from 120 bars")
	}
	if bundle.Technicals == nil || bundle.Technicals.RSI == nil {
		t.Fatal("snapshot must carry indicator values")
	}
	if *bundle.Technicals.RSI < 0 || *bundle.Technicals.RSI > 100 {
		t.Errorf("RSI out of range: %v", *bundle.Technicals.RSI)
	}
	if bundle.Quote == nil || bundle.Quote.Last <= 0 {
		t.Error("snapshot must carry the latest quote")
	}
	if bundle.Regime == nil {
		t.Error("snapshot must classify a regime")
	}
}
