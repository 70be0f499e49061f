// Package optimize tunes signal weights by grid search over historical
// replays: score a baseline, rank candidate signals by the impact of zeroing
// them, then sweep the top movers one at a time, keeping each best value.
// Results are reported for review, never applied to a live weight table.
package optimize

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"edge-scorer/internal/backtest"
	"edge-scorer/internal/marketdata"
	"edge-scorer/internal/signal"
)

// Optimization metrics. WinRate is the share of labeled scores that hit their
// target; profit factor is gross wins over gross losses on the labeled pnl.
const (
	MetricWinRate      = "winRate"
	MetricProfitFactor = "profitFactor"
	MetricPnl          = "pnl"
)

// Candidates lists the weight keys a bars-only replay can exercise. Flow,
// dark-pool, and external-data rules never fire without their feeds, so
// sweeping them is noise.
var Candidates = []string{
	"ema_alignment",
	"rsi_position",
	"macd_histogram",
	"bollinger_position",
	"bb_squeeze",
	"vwap_deviation",
	"volume_spike",
	"volume_direction",
	"multi_tf_confluence",
	"rsi_divergence",
	"vol_regime",
	"candlestick_pattern",
}

// Config controls one optimization run. Zero values take the defaults below.
type Config struct {
	Timeframe  string
	WarmupBars int
	Metric     string
	MinTrades  int     // evaluations with fewer labeled scores are unusable
	WeightMin  float64 // grid bounds, inclusive
	WeightMax  float64
	WeightStep float64
	TopSignals int // how many ranked candidates get swept
}

func (c Config) withDefaults() Config {
	if c.Metric == "" {
		c.Metric = MetricWinRate
	}
	if c.MinTrades <= 0 {
		c.MinTrades = 30
	}
	if c.WeightMax <= c.WeightMin {
		c.WeightMin, c.WeightMax = 0, 10
	}
	if c.WeightStep <= 0 {
		c.WeightStep = 1
	}
	if c.TopSignals <= 0 {
		c.TopSignals = 10
	}
	return c
}

// Evaluation is one weight table's aggregate replay performance.
type Evaluation struct {
	Score    float64 `json:"score"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"winRate"`
	TotalPnl float64 `json:"totalPnl"`
	Usable   bool    `json:"usable"`
}

// SignalImpact is how much the baseline score drops when one signal is
// silenced. Negative impact means the signal was hurting.
type SignalImpact struct {
	Key    string  `json:"key"`
	Impact float64 `json:"impact"`
}

// WeightChange records one tuned weight.
type WeightChange struct {
	Key  string  `json:"key"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Report is the outcome of a full optimization run.
type Report struct {
	Metric    string             `json:"metric"`
	Baseline  Evaluation         `json:"baseline"`
	Optimized Evaluation         `json:"optimized"`
	Weights   map[string]float64 `json:"weights"`
	Changes   []WeightChange     `json:"changes"`
	Ranked    []SignalImpact     `json:"ranked"`
}

// Optimizer evaluates candidate weight tables against pre-fetched bar
// histories. Fetching stays with the caller so a run never touches the
// network.
type Optimizer struct {
	histories map[string][]marketdata.Bar
	base      map[string]float64
	cfg       Config
}

func New(histories map[string][]marketdata.Bar, base map[string]float64, cfg Config) *Optimizer {
	if base == nil {
		base = signal.DefaultWeights()
	}
	return &Optimizer{
		histories: histories,
		base:      cloneWeights(base),
		cfg:       cfg.withDefaults(),
	}
}

// Evaluate replays every history with the given weight table and aggregates
// the labeled outcomes into the configured metric. Histories too short to
// replay are skipped.
func (o *Optimizer) Evaluate(weights map[string]float64) Evaluation {
	engine := signal.NewEngine(signal.NewWeightTable(cloneWeights(weights), nil))
	runner := backtest.NewRunner(engine, backtest.Config{
		Timeframe:  o.cfg.Timeframe,
		WarmupBars: o.cfg.WarmupBars,
	})

	var ev Evaluation
	for ticker, bars := range o.histories {
		res, err := runner.Run(ticker, bars)
		if err != nil {
			log.Debug().Err(err).Str("ticker", ticker).Msg("history skipped during evaluation")
			continue
		}
		ev.Trades += res.Scored
		ev.Wins += res.Wins
		for _, sample := range res.Samples {
			ev.TotalPnl += sample.PnlPct
		}
	}

	if ev.Trades < o.cfg.MinTrades {
		return ev
	}
	ev.Usable = true
	ev.WinRate = float64(ev.Wins) / float64(ev.Trades)

	switch o.cfg.Metric {
	case MetricProfitFactor:
		ev.Score = profitFactor(o, weights)
	case MetricPnl:
		ev.Score = ev.TotalPnl
	default:
		ev.Score = ev.WinRate * 100
	}
	return ev
}

// profitFactor reruns the replay accumulating signed pnl separately. Kept out
// of the main loop so the common win-rate path stays single-pass.
func profitFactor(o *Optimizer, weights map[string]float64) float64 {
	engine := signal.NewEngine(signal.NewWeightTable(cloneWeights(weights), nil))
	runner := backtest.NewRunner(engine, backtest.Config{
		Timeframe:  o.cfg.Timeframe,
		WarmupBars: o.cfg.WarmupBars,
	})
	winSum, lossSum := 0.0, 0.0
	for ticker, bars := range o.histories {
		res, err := runner.Run(ticker, bars)
		if err != nil {
			continue
		}
		for _, sample := range res.Samples {
			if sample.PnlPct > 0 {
				winSum += sample.PnlPct
			} else {
				lossSum -= sample.PnlPct
			}
		}
	}
	if lossSum < 0.01 {
		lossSum = 0.01
	}
	return winSum / lossSum
}

// Run executes the full pipeline: baseline, sensitivity ranking, sequential
// grid sweep of the top candidates, final evaluation.
func (o *Optimizer) Run() (*Report, error) {
	baseline := o.Evaluate(o.base)
	if !baseline.Usable {
		return nil, fmt.Errorf("baseline produced %d labeled scores, need %d",
			baseline.Trades, o.cfg.MinTrades)
	}
	log.Info().
		Float64("score", baseline.Score).
		Int("trades", baseline.Trades).
		Str("metric", o.cfg.Metric).
		Msg("baseline evaluated")

	ranked := o.rankCandidates(baseline)
	top := ranked
	if len(top) > o.cfg.TopSignals {
		top = top[:o.cfg.TopSignals]
	}

	optimized := cloneWeights(o.base)
	for _, sig := range top {
		best, bestScore := o.sweep(optimized, sig.Key)
		optimized[sig.Key] = best
		log.Info().
			Str("signal", sig.Key).
			Float64("weight", best).
			Float64("score", bestScore).
			Msg("signal swept")
	}

	final := o.Evaluate(optimized)
	report := &Report{
		Metric:    o.cfg.Metric,
		Baseline:  baseline,
		Optimized: final,
		Weights:   optimized,
		Ranked:    ranked,
	}
	for _, key := range Candidates {
		if optimized[key] != o.base[key] {
			report.Changes = append(report.Changes, WeightChange{
				Key: key, From: o.base[key], To: optimized[key],
			})
		}
	}
	return report, nil
}

// rankCandidates measures each candidate's impact by zeroing it against the
// baseline, most impactful first.
func (o *Optimizer) rankCandidates(baseline Evaluation) []SignalImpact {
	ranked := make([]SignalImpact, 0, len(Candidates))
	for _, key := range Candidates {
		probe := cloneWeights(o.base)
		probe[key] = 0
		ev := o.Evaluate(probe)
		impact := baseline.Score - ev.Score
		if !ev.Usable {
			// Silencing the signal starved the replay of trades; that is
			// maximal impact, not a missing data point.
			impact = baseline.Score
		}
		ranked = append(ranked, SignalImpact{Key: key, Impact: impact})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Impact) > math.Abs(ranked[j].Impact)
	})
	return ranked
}

// sweep grid searches one key holding the rest of the table fixed. The
// incumbent weight is kept unless a grid point strictly beats it.
func (o *Optimizer) sweep(weights map[string]float64, key string) (float64, float64) {
	incumbent := weights[key]
	ev := o.Evaluate(weights)
	best, bestScore := incumbent, math.Inf(-1)
	if ev.Usable {
		bestScore = ev.Score
	}

	for w := o.cfg.WeightMin; w <= o.cfg.WeightMax+1e-9; w += o.cfg.WeightStep {
		if w == incumbent {
			continue
		}
		weights[key] = w
		ev := o.Evaluate(weights)
		if ev.Usable && ev.Score > bestScore {
			best, bestScore = w, ev.Score
		}
	}
	weights[key] = best
	return best, bestScore
}

func cloneWeights(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
