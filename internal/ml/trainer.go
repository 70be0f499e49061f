package ml

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"edge-scorer/internal/features"
)

const (
	minTrainingSamples = 30
	minSampleFeatures  = 10
	trainEpochs        = 500
	learningRate       = 0.01
	l2Lambda           = 0.01
)

// TrainerMetrics is the metrics surface the trainer reports to.
type TrainerMetrics interface {
	TrainingRunsInc()
	TrainingSamplesSet(string, float64)
	ModelAccuracySet(string, float64)
}

// Trainer fits logistic regression calibrators with full-batch gradient
// descent. One Trainer is safe for concurrent Train calls; each call works
// on its own copies.
type Trainer struct {
	metrics TrainerMetrics
}

func NewTrainer() *Trainer {
	return NewTrainerWithMetrics(nil)
}

func NewTrainerWithMetrics(metrics TrainerMetrics) *Trainer {
	return &Trainer{metrics: metrics}
}

// Train fits a model for the timeframe/version from the given samples. Each
// qualifying sample (at least 10 raw features, all finite) is resized to the
// canonical feature width before stats and fitting, so samples recorded under
// an older, narrower schema still train a full-width model.
// Returns (nil, false) without side effects when fewer than 30 usable
// samples are available; a nil result never replaces a published model.
func (t *Trainer) Train(samples []TrainingSample, timeframe, version string) (*Model, bool) {
	width := features.Count
	rows := make([][]float64, 0, len(samples))
	labels := make([]float64, 0, len(samples))
	for _, s := range samples {
		if len(s.Features) < minSampleFeatures {
			continue
		}
		if hasBadValue(s.Features) {
			continue
		}
		rows = append(rows, features.Normalize(s.Features))
		if s.Label == 1 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	if len(rows) < minTrainingSamples {
		log.Debug().
			Str("timeframe", timeframe).
			Str("version", version).
			Int("usable", len(rows)).
			Int("required", minTrainingSamples).
			Msg("not enough samples to train, keeping current model")
		return nil, false
	}

	n := len(rows)
	stats := make([]FeatureStat, width)
	for j := 0; j < width; j++ {
		stats[j] = FeatureStat{Min: rows[0][j], Max: rows[0][j]}
	}
	for _, row := range rows {
		for j, v := range row {
			if v < stats[j].Min {
				stats[j].Min = v
			}
			if v > stats[j].Max {
				stats[j].Max = v
			}
			stats[j].Mean += v
		}
	}
	for j := range stats {
		stats[j].Mean /= float64(n)
	}

	// Normalized design matrix; degenerate columns map to 0.5.
	x := make([][]float64, n)
	y := labels
	for i, row := range rows {
		scaled := make([]float64, width)
		for j, v := range row {
			if stats[j].Max == stats[j].Min {
				scaled[j] = 0.5
			} else {
				scaled[j] = (v - stats[j].Min) / (stats[j].Max - stats[j].Min)
			}
		}
		x[i] = scaled
	}

	weights := make([]float64, width)
	bias := 0.0
	gradW := make([]float64, width)

	for epoch := 0; epoch < trainEpochs; epoch++ {
		for j := range gradW {
			gradW[j] = 0
		}
		gradB := 0.0
		for i := 0; i < n; i++ {
			z := bias
			for j, w := range weights {
				z += w * x[i][j]
			}
			err := sigmoid(z) - y[i]
			for j := range gradW {
				gradW[j] += err * x[i][j]
			}
			gradB += err
		}
		// L2 penalty on weights only, never the bias.
		for j := range weights {
			weights[j] -= learningRate * (gradW[j]/float64(n) + l2Lambda*weights[j])
		}
		bias -= learningRate * gradB / float64(n)
	}

	correct := 0
	for i := 0; i < n; i++ {
		z := bias
		for j, w := range weights {
			z += w * x[i][j]
		}
		predicted := 0
		if sigmoid(z) >= 0.5 {
			predicted = 1
		}
		if float64(predicted) == y[i] {
			correct++
		}
	}
	accuracy := float64(correct) / float64(n)

	m := &Model{
		Timeframe:    timeframe,
		Version:      version,
		Trained:      true,
		Weights:      weights,
		Bias:         bias,
		FeatureStats: stats,
		Samples:      n,
		Accuracy:     accuracy,
		TrainedAt:    time.Now(),
	}
	m.FeatureImportance = Importance(m, features.Name)

	if t.metrics != nil {
		t.metrics.TrainingRunsInc()
		t.metrics.TrainingSamplesSet(m.Key(), float64(n))
		t.metrics.ModelAccuracySet(m.Key(), accuracy)
	}

	log.Info().
		Str("timeframe", timeframe).
		Str("version", version).
		Int("samples", n).
		Int("features", width).
		Float64("accuracy", accuracy).
		Msg("calibrator trained")

	return m, true
}

// FeatureRank is one feature dimension's trained weight plus its magnitude
// relative to the strongest dimension.
type FeatureRank struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	Importance float64 `json:"importance"` // |weight| / max |weight|
}

// Importance ranks feature dimensions by absolute trained weight, descending.
func Importance(m *Model, names func(int) string) []FeatureRank {
	if m == nil {
		return nil
	}
	maxAbs := 0.0
	for _, w := range m.Weights {
		if a := math.Abs(w); a > maxAbs {
			maxAbs = a
		}
	}
	ranks := make([]FeatureRank, len(m.Weights))
	for i, w := range m.Weights {
		ranks[i] = FeatureRank{Index: i, Name: names(i), Weight: w}
		if maxAbs > 0 {
			ranks[i].Importance = math.Abs(w) / maxAbs
		}
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		return math.Abs(ranks[i].Weight) > math.Abs(ranks[j].Weight)
	})
	return ranks
}

func hasBadValue(features []float64) bool {
	for _, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}
