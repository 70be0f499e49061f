// Package ml implements the per-timeframe logistic regression calibrator:
// training from labeled scoring outcomes, probability prediction, and the
// rule/ML ensemble blend.
package ml

import (
	"math"
	"time"
)

// Timeframe keys. Models are stored and looked up per timeframe, optionally
// narrowed by a version tag.
const (
	TimeframeDayTrade = "dayTrade"
	TimeframeSwing    = "swing"
)

// TrainingSample is one labeled scoring outcome.
type TrainingSample struct {
	Features   []float64 `json:"features"`
	Label      int       `json:"label"` // 1 = favorable outcome
	Confidence int       `json:"confidence"`
	PnlPct     float64   `json:"pnlPct"`
	Timeframe  string    `json:"timeframe"`
	Version    string    `json:"version,omitempty"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
}

// FeatureStat is the per-dimension normalization statistics captured at
// training time.
type FeatureStat struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Model is a trained logistic regression calibrator plus the normalization
// statistics captured at training time.
type Model struct {
	Timeframe         string        `json:"timeframe"`
	Version           string        `json:"version,omitempty"`
	Trained           bool          `json:"trained"`
	Weights           []float64     `json:"weights"`
	Bias              float64       `json:"bias"`
	FeatureStats      []FeatureStat `json:"featureStats"`
	FeatureImportance []FeatureRank `json:"featureImportance,omitempty"`
	Samples           int           `json:"samples"`
	Accuracy          float64       `json:"accuracy"`
	TrainedAt         time.Time     `json:"trainedAt"`
}

// Key returns the store key for this model.
func (m *Model) Key() string {
	if m.Version != "" {
		return m.Timeframe + ":" + m.Version
	}
	return m.Timeframe
}

// normalize min-max scales raw features with the stats captured at training
// time. A degenerate dimension (max == min) maps to 0.5.
func (m *Model) normalize(raw []float64) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		lo, hi := m.FeatureStats[i].Min, m.FeatureStats[i].Max
		if hi == lo {
			out[i] = 0.5
			continue
		}
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// Probability runs the trained model on a raw feature vector. Inputs are
// resized to the model's width, so a shorter vector scores zero-padded and a
// longer one truncated. The second return is false only when the model itself
// is unusable: untrained, or stats inconsistent with the weights.
func (m *Model) Probability(features []float64) (float64, bool) {
	if m == nil || !m.Trained || len(m.Weights) == 0 {
		return 0, false
	}
	if len(m.FeatureStats) != len(m.Weights) {
		return 0, false
	}
	x := m.normalize(resize(features, len(m.Weights)))
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z), true
}

// resize zero-pads raw on the right, or truncates it, to exactly n slots.
// Non-finite values score as zero. The input is never modified.
func resize(raw []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, raw)
	for i := range out {
		if math.IsNaN(out[i]) || math.IsInf(out[i], 0) {
			out[i] = 0
		}
	}
	return out
}

// sigmoid saturates to exact 0/1 outside ±500 to avoid overflow in Exp.
func sigmoid(z float64) float64 {
	switch {
	case z > 500:
		return 1
	case z < -500:
		return 0
	}
	return 1 / (1 + math.Exp(-z))
}
