package signal

import (
	"sync"

	"github.com/rs/zerolog/log"

	"edge-scorer/internal/market"
)

// DefaultWeights returns the base signal weight table. Keys are weight-table
// keys, which usually but not always coincide with rule IDs: the RSI reversion
// and position rules share one key, and the tick rules have their own.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"ema_alignment":          5,
		"rsi_position":           3,
		"macd_histogram":         2,
		"macd_accel":             2,
		"bollinger_position":     1,
		"bb_squeeze":             2,
		"vwap_deviation":         2,
		"call_put_ratio":         3,
		"sweep_activity":         2,
		"dark_pool_direction":    4,
		"insider_congress":       1,
		"insider_conviction":     3,
		"gex_positioning":        2,
		"gamma_wall":             2,
		"spot_gamma_pin":         3,
		"iv_rank":                1,
		"short_interest":         1,
		"volume_spike":           2,
		"volume_direction":       3,
		"candlestick_pattern":    2,
		"news_sentiment":         2,
		"multi_tf_confluence":    5,
		"short_cover_bounce":     4,
		"consolidation_breakout": 4,
		"rsi_divergence":         3,
		"fibonacci_proximity":    2,
		"volatility_runner":      5,
		"net_premium_momentum":   5,
		"strike_flow_levels":     4,
		"greek_flow_momentum":    4,
		"sector_tide_alignment":  3,
		"etf_tide_macro":         3,
		"seasonality_alignment":  2,
		"vol_regime":             3,
		"short_volume_trend":     2,
		"fails_to_deliver":       2,
		"flow_horizon":           2,
		"tick_flow":              5,
		"tick_vwap":              3,
		"tick_blocks":            4,
	}
}

// DefaultSessionMultipliers returns the static per-session weight scaling.
// A key absent for a session means 1.0.
func DefaultSessionMultipliers() map[market.Session]map[string]float64 {
	return map[market.Session]map[string]float64{
		market.OpenRush: {
			"volume_spike":     1.5,
			"volume_direction": 1.4,
			"sweep_activity":   1.3,
			"vwap_deviation":   1.3,
			"ema_alignment":    0.7,
		},
		market.PowerOpen: {
			"volume_direction":    1.2,
			"sweep_activity":      1.2,
			"candlestick_pattern": 1.2,
		},
		market.PreMarket: {
			"volume_spike":        0.5,
			"volume_direction":    0.5,
			"dark_pool_direction": 0.6,
			"news_sentiment":      1.5,
			"vwap_deviation":      0.5,
		},
		market.Midday: {
			"volume_spike":       0.8,
			"sweep_activity":     0.8,
			"bollinger_position": 1.2,
			"vol_regime":         1.1,
		},
		market.PowerHour: {
			"ema_alignment":        1.2,
			"multi_tf_confluence":  1.2,
			"net_premium_momentum": 1.3,
			"gamma_wall":           1.3,
			"spot_gamma_pin":       1.4,
		},
		market.AfterHours: {
			"volume_spike":       0.4,
			"volume_direction":   0.4,
			"sweep_activity":     0.3,
			"news_sentiment":     1.4,
			"insider_conviction": 1.2,
		},
		market.Overnight: {
			"volume_spike":          0.3,
			"volume_direction":      0.3,
			"sweep_activity":        0.2,
			"dark_pool_direction":   0.3,
			"news_sentiment":        1.3,
			"seasonality_alignment": 1.2,
		},
	}
}

// WeightTable is the process-wide signal weight configuration. Reads during a
// scoring pass go through effective(); mutation happens only through Update.
type WeightTable struct {
	mu       sync.RWMutex
	base     map[string]float64
	sessions map[market.Session]map[string]float64
}

func NewWeightTable(base map[string]float64, sessions map[market.Session]map[string]float64) *WeightTable {
	if base == nil {
		base = DefaultWeights()
	}
	if sessions == nil {
		sessions = DefaultSessionMultipliers()
	}
	return &WeightTable{base: base, sessions: sessions}
}

// Base returns the base weight for a key (0 when absent).
func (w *WeightTable) Base(key string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.base[key]
}

// Effective returns baseWeight × sessionMultiplier, the multiplier defaulting
// to 1.0 when the session or key is absent from the table.
func (w *WeightTable) Effective(key string, session market.Session) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	base := w.base[key]
	if m, ok := w.sessions[session]; ok {
		if mult, ok := m[key]; ok {
			return base * mult
		}
	}
	return base
}

// Update replaces base weights for the given keys. Negative weights are
// rejected per key; the rest of the batch still applies.
func (w *WeightTable) Update(changes map[string]float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, weight := range changes {
		if weight < 0 {
			log.Warn().Str("signal", key).Float64("weight", weight).Msg("rejecting negative signal weight")
			continue
		}
		w.base[key] = weight
	}
}

// Snapshot returns a copy of the base weight table.
func (w *WeightTable) Snapshot() map[string]float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]float64, len(w.base))
	for k, v := range w.base {
		out[k] = v
	}
	return out
}
