package ml

import (
	"math"
	"sort"

	"edge-scorer/internal/features"
)

// featureSignalKeys maps feature dimensions to the signal weight key each one
// is evidence for. Dimensions without a single owning rule (regime context,
// interaction terms) are absent and never produce a suggestion.
var featureSignalKeys = map[string]string{
	"rsi":             "rsi_position",
	"macd_hist":       "macd_histogram",
	"ema_align":       "ema_alignment",
	"bb_pos":          "bollinger_position",
	"cp_ratio":        "call_put_ratio",
	"dp_dir":          "dark_pool_direction",
	"iv_rank":         "iv_rank",
	"si_pct":          "short_interest",
	"vol_spike":       "volume_spike",
	"bb_bw":           "bb_squeeze",
	"vwap_dev":        "vwap_deviation",
	"gamma_prox":      "gamma_wall",
	"candle":          "candlestick_pattern",
	"sentiment":       "news_sentiment",
	"rsi_div":         "rsi_divergence",
	"fib_prox":        "fibonacci_proximity",
	"macd_accel":      "macd_accel",
	"net_premium":     "net_premium_momentum",
	"strike_flow":     "strike_flow_levels",
	"greek_flow":      "greek_flow_momentum",
	"sector_tide":     "sector_tide_alignment",
	"etf_tide":        "etf_tide_macro",
	"short_vol_ratio": "short_volume_trend",
	"ftd_spike":       "fails_to_deliver",
	"seasonality":     "seasonality_alignment",
	"realized_vol":    "vol_regime",
	"gex_net":         "gex_positioning",
	"flow_horizon":    "flow_horizon",
	"tick_imbalance":  "tick_flow",
	"block_flow":      "tick_blocks",
	"confluence":      "multi_tf_confluence",
	"short_cover":     "short_cover_bounce",
	"consolidation":   "consolidation_breakout",
	"squeeze":         "bb_squeeze",
}

// WeightSuggestion is an advisory base-weight proposal for one signal key.
// Suggestions are reported, never applied automatically.
type WeightSuggestion struct {
	SignalKey string  `json:"signalKey"`
	Feature   string  `json:"feature"`
	Suggested int     `json:"suggested"` // 1..4
	Weight    float64 `json:"weight"`    // trained weight behind the suggestion
}

// SuggestWeights derives advisory weight proposals from a trained model. The
// suggestion scales with each feature's weight magnitude relative to the
// largest one; one suggestion per signal key, strongest feature wins.
func SuggestWeights(m *Model) []WeightSuggestion {
	if m == nil || len(m.Weights) == 0 {
		return nil
	}

	ranks := Importance(m, features.Name)
	if len(ranks) == 0 || ranks[0].Importance == 0 {
		return nil
	}

	byKey := make(map[string]WeightSuggestion)
	for _, r := range ranks {
		key, ok := featureSignalKeys[r.Name]
		if !ok {
			continue
		}
		if _, seen := byKey[key]; seen {
			continue
		}
		byKey[key] = WeightSuggestion{
			SignalKey: key,
			Feature:   r.Name,
			Suggested: 1 + int(math.Round(3*r.Importance)),
			Weight:    r.Weight,
		}
	}

	out := make([]WeightSuggestion, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return math.Abs(out[i].Weight) > math.Abs(out[j].Weight)
	})
	return out
}
