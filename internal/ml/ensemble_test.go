package ml

import (
	"math"
	"testing"

	"edge-scorer/internal/features"
)

func TestMLWeightRampAndCap(t *testing.T) {
	t.Parallel()

	cases := []struct {
		samples int
		want    float64
	}{
		{0, 0},
		{30, 0.18},
		{50, 0.3},
		{100, 0.6},
		{150, 0.6},
		{1000, 0.6},
	}
	for _, tc := range cases {
		if got := MLWeight(tc.samples); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("MLWeight(%d) = %v, want %v", tc.samples, got, tc.want)
		}
	}

	// Monotone non-decreasing.
	prev := -1.0
	for s := 0; s <= 200; s += 5 {
		w := MLWeight(s)
		if w < prev {
			t.Fatalf("MLWeight not monotone at %d: %v < %v", s, w, prev)
		}
		prev = w
	}
}

func TestBlendAbstainPassesRuleThrough(t *testing.T) {
	t.Parallel()

	e := NewEnsemble(NewPredictor()) // no models published

	res := e.Blend(72, make([]float64, 42), TimeframeDayTrade, "")
	if res.Source != SourceRuleBased {
		t.Errorf("expected rule_based, got %s", res.Source)
	}
	if res.Confidence != 72 {
		t.Errorf("rule confidence must pass through, got %d", res.Confidence)
	}
	if res.MLWeight != 0 || res.RuleWeight != 1 {
		t.Errorf("abstention carries mlWeight 0 / ruleWeight 1, got %v / %v", res.MLWeight, res.RuleWeight)
	}
	if res.RuleConfidence != 72 {
		t.Errorf("ruleConfidence = %d, want 72", res.RuleConfidence)
	}
}

func TestBlendCombinesSources(t *testing.T) {
	t.Parallel()

	p := NewPredictor()
	// A model that always outputs sigmoid(bias); bias 0 gives probability 0.5.
	p.Publish(&Model{
		Timeframe:    TimeframeDayTrade,
		Trained:      true,
		Weights:      make([]float64, features.Count),
		FeatureStats: make([]FeatureStat, features.Count),
		Samples:      50, // mlWeight 0.3
	})
	e := NewEnsemble(p)

	res := e.Blend(80, make([]float64, 42), TimeframeDayTrade, "")
	if res.Source != SourceEnsemble {
		t.Fatalf("expected ensemble, got %s", res.Source)
	}
	// 0.7*80 + 0.3*50 = 71
	if res.Confidence != 71 {
		t.Errorf("expected blended 71, got %d", res.Confidence)
	}
	if math.Abs(res.MLWeight-0.3) > 1e-9 {
		t.Errorf("expected mlWeight 0.3, got %v", res.MLWeight)
	}
	if math.Abs(res.MLProbability-0.5) > 1e-9 {
		t.Errorf("expected probability 0.5, got %v", res.MLProbability)
	}
	if res.RuleConfidence != 80 || res.MLConfidence != 50 {
		t.Errorf("component confidences: rule %d ml %d", res.RuleConfidence, res.MLConfidence)
	}
	if res.TrainingSamples != 50 {
		t.Errorf("trainingSamples = %d, want 50", res.TrainingSamples)
	}
}

func TestBlendClampsConfidence(t *testing.T) {
	t.Parallel()

	e := NewEnsemble(NewPredictor())
	if got := e.Blend(130, nil, TimeframeDayTrade, "").Confidence; got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
	if got := e.Blend(-10, nil, TimeframeDayTrade, "").Confidence; got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
}
