// Package signal implements the deterministic multi-signal scoring engine.
// It evaluates weighted rules over technical, options-flow, dark-pool, gamma,
// sentiment, and insider inputs, conditioned on trading session and detected
// market regime, and produces a directional confidence score plus the feature
// vector consumed by the ML calibrator.
package signal

import (
	"time"

	"edge-scorer/internal/market"
)

// Direction is the per-record directional vote.
type Direction string

const (
	Bull    Direction = "BULL"
	Bear    Direction = "BEAR"
	Neutral Direction = "NEUTRAL"
)

// Verdict is the aggregate call for a scoring pass.
type Verdict string

const (
	Bullish      Verdict = "BULLISH"
	Bearish      Verdict = "BEARISH"
	NeutralScore Verdict = "NEUTRAL"
)

// Rule identifiers. Post-hoc adjustment passes match on these stable IDs,
// never on display names.
const (
	RuleEMAAlignment    = "ema_alignment"
	RuleRSIPosition     = "rsi_position"
	RuleRSIReversion    = "rsi_reversion"
	RuleMACDHistogram   = "macd_histogram"
	RuleMACDAccel       = "macd_accel"
	RuleBollinger       = "bollinger_position"
	RuleBBSqueeze       = "bb_squeeze"
	RuleVWAPDeviation   = "vwap_deviation"
	RuleCandlestick     = "candlestick_pattern"
	RuleCallPutRatio    = "call_put_ratio"
	RuleSweepActivity   = "sweep_activity"
	RuleDarkPool        = "dark_pool_direction"
	RuleVolumeDirection = "volume_direction"
	RuleVolumeSpike     = "volume_spike"
	RuleGEXPositioning  = "gex_positioning"
	RuleGammaWall       = "gamma_wall"
	RuleSpotGammaPin    = "spot_gamma_pin"
	RuleIVRank          = "iv_rank"
	RuleShortInterest   = "short_interest"
	RuleSentiment       = "news_sentiment"
	RuleInsider         = "insider_conviction"
	RuleCongress        = "insider_congress"
	RuleConfluence      = "multi_tf_confluence"
	RuleShortCover      = "short_cover_bounce"
	RuleConsolidation   = "consolidation_breakout"
	RuleRSIDivergence   = "rsi_divergence"
	RuleFibProximity    = "fibonacci_proximity"
	RuleNetPremium      = "net_premium_momentum"
	RuleStrikeFlow      = "strike_flow_levels"
	RuleGreekFlow       = "greek_flow_momentum"
	RuleSectorTide      = "sector_tide_alignment"
	RuleETFTide         = "etf_tide_macro"
	RuleShortVolume     = "short_volume_trend"
	RuleFTD             = "fails_to_deliver"
	RuleSeasonality     = "seasonality_alignment"
	RuleRealizedVol     = "vol_regime"
	RuleVolRunner       = "volatility_runner"
	RuleFlowHorizon     = "flow_horizon"
	RuleTickFlow        = "tick_flow"
	RuleTickVWAP        = "tick_vwap"
	RuleTickBlocks      = "tick_blocks"
)

// SignalRecord is one fired rule. Records are append-only except for the two
// post-hoc adjustment passes (ADX gate, tick override).
type SignalRecord struct {
	Rule      string    `json:"rule"`
	Name      string    `json:"name"`
	Direction Direction `json:"direction"`
	Weight    float64   `json:"weight"`
	Detail    string    `json:"detail"`
}

// ScoreResult is the outcome of one scoring pass. Created fresh per call and
// never mutated afterwards.
type ScoreResult struct {
	Ticker     string         `json:"ticker"`
	Direction  Verdict        `json:"direction"`
	Confidence int            `json:"confidence"`
	BullScore  float64        `json:"bullScore"`
	BearScore  float64        `json:"bearScore"`
	Spread     float64        `json:"spread"`
	Signals    []SignalRecord `json:"signals"`
	Session    market.Session `json:"session"`
	Timestamp  time.Time      `json:"timestamp"`
	Features   []float64      `json:"features"`
}
