package ml

import "math"

// Blend sources.
const (
	SourceRuleBased = "rule_based"
	SourceEnsemble  = "ensemble"
)

// BlendResult is the ensemble output for one scoring call.
type BlendResult struct {
	Confidence      int     `json:"confidence"`
	RuleConfidence  int     `json:"ruleConfidence"`
	MLConfidence    int     `json:"mlConfidence,omitempty"`
	MLProbability   float64 `json:"mlProbability,omitempty"`
	MLWeight        float64 `json:"mlWeight"`
	RuleWeight      float64 `json:"ruleWeight"`
	Source          string  `json:"source"`
	Timeframe       string  `json:"timeframe"`
	Version         string  `json:"version,omitempty"`
	ModelAccuracy   float64 `json:"modelAccuracy,omitempty"`
	TrainingSamples int     `json:"trainingSamples,omitempty"`
}

// Ensemble blends rule confidence with the calibrated probability. The ML
// share ramps with training sample count and is capped at 0.6, so the rule
// engine always keeps at least 40% of the vote.
type Ensemble struct {
	predictor *Predictor
}

func NewEnsemble(predictor *Predictor) *Ensemble {
	return &Ensemble{predictor: predictor}
}

// MLWeight returns min(0.6, samples/100 * 0.6).
func MLWeight(samples int) float64 {
	return math.Min(0.6, float64(samples)/100*0.6)
}

// Blend combines the rule-based confidence with the model probability for
// the timeframe/version. When the predictor abstains the rule confidence
// passes through untouched.
func (e *Ensemble) Blend(ruleConfidence int, features []float64, timeframe, version string) BlendResult {
	prob, ok := e.predictor.Predict(features, timeframe, version)
	if !ok {
		return BlendResult{
			Confidence:     clampConfidence(ruleConfidence),
			RuleConfidence: clampConfidence(ruleConfidence),
			RuleWeight:     1,
			Source:         SourceRuleBased,
			Timeframe:      timeframe,
			Version:        version,
		}
	}

	m := e.predictor.Model(timeframe, version)
	mlW := MLWeight(m.Samples)
	mlConfidence := math.Round(prob * 100)
	blended := math.Round((1-mlW)*float64(ruleConfidence) + mlW*mlConfidence)

	return BlendResult{
		Confidence:      clampConfidence(int(blended)),
		RuleConfidence:  clampConfidence(ruleConfidence),
		MLConfidence:    int(mlConfidence),
		MLProbability:   prob,
		MLWeight:        mlW,
		RuleWeight:      1 - mlW,
		Source:          SourceEnsemble,
		Timeframe:       timeframe,
		Version:         version,
		ModelAccuracy:   m.Accuracy,
		TrainingSamples: m.Samples,
	}
}

func clampConfidence(c int) int {
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return c
}
