package ml

import (
	"sync"

	"github.com/rs/zerolog/log"

	"edge-scorer/internal/features"
)

// PredictorMetrics is the metrics surface the predictor reports to.
type PredictorMetrics interface {
	PredictionsInc()
	AbstentionsInc()
	PredictionScoreObserve(float64)
}

// Predictor holds published models and scores feature vectors against them.
// Lookups fall back from "timeframe:version" to the shared "timeframe" model;
// a missing or mismatched model is an abstention, never an error.
type Predictor struct {
	mu      sync.RWMutex
	models  map[string]*Model
	metrics PredictorMetrics
}

func NewPredictor() *Predictor {
	return NewPredictorWithMetrics(nil)
}

func NewPredictorWithMetrics(metrics PredictorMetrics) *Predictor {
	return &Predictor{
		models:  make(map[string]*Model),
		metrics: metrics,
	}
}

// Publish installs a trained model under its key. Nil models are ignored so
// a failed training run never clobbers the live model.
func (p *Predictor) Publish(m *Model) {
	if m == nil {
		return
	}
	p.mu.Lock()
	p.models[m.Key()] = m
	p.mu.Unlock()
	log.Info().
		Str("key", m.Key()).
		Int("samples", m.Samples).
		Float64("accuracy", m.Accuracy).
		Msg("model published")
}

// Model returns the model serving the timeframe/version, or nil.
func (p *Predictor) Model(timeframe, version string) *Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if version != "" {
		if m, ok := p.models[timeframe+":"+version]; ok {
			return m
		}
	}
	return p.models[timeframe]
}

// Predict returns the calibrated probability for a raw feature vector. Short
// vectors are zero-padded and long ones truncated to the model's width; ok is
// false only when no usable model exists for the timeframe/version. A
// persisted model whose width drifted from the canonical schema is treated as
// untrained rather than reinterpreted.
func (p *Predictor) Predict(vec []float64, timeframe, version string) (float64, bool) {
	m := p.Model(timeframe, version)
	if m != nil && len(m.Weights) != features.Count {
		log.Warn().
			Str("key", m.Key()).
			Int("width", len(m.Weights)).
			Int("want", features.Count).
			Msg("model width does not match the feature schema, abstaining")
		m = nil
	}
	prob, ok := m.Probability(vec)
	if p.metrics != nil {
		if ok {
			p.metrics.PredictionsInc()
			p.metrics.PredictionScoreObserve(prob)
		} else {
			p.metrics.AbstentionsInc()
		}
	}
	return prob, ok
}

// Samples reports the training sample count behind the serving model, 0 when
// untrained.
func (p *Predictor) Samples(timeframe, version string) int {
	if m := p.Model(timeframe, version); m != nil {
		return m.Samples
	}
	return 0
}
