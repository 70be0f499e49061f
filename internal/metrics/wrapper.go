package metrics

// Wrapper adapts Metrics to the narrow interfaces the signal and ml packages
// consume, keeping those packages free of a prometheus dependency.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) ScoresInc()                  { w.m.ScoresTotal.Inc() }
func (w *Wrapper) SignalsEmittedAdd(n float64) { w.m.SignalsEmitted.Add(n) }
func (w *Wrapper) ConfidenceObserve(c float64) { w.m.Confidence.Observe(c) }

func (w *Wrapper) TrainingRunsInc() { w.m.TrainingRuns.Inc() }
func (w *Wrapper) TrainingSamplesSet(model string, n float64) {
	w.m.TrainingSamples.WithLabelValues(model).Set(n)
}
func (w *Wrapper) ModelAccuracySet(model string, acc float64) {
	w.m.ModelAccuracy.WithLabelValues(model).Set(acc)
}

func (w *Wrapper) PredictionsInc()                  { w.m.Predictions.Inc() }
func (w *Wrapper) AbstentionsInc()                  { w.m.Abstentions.Inc() }
func (w *Wrapper) PredictionScoreObserve(p float64) { w.m.PredictionScores.Observe(p) }

func (w *Wrapper) BarsFetchedInc() { w.m.BarsFetched.Inc() }
func (w *Wrapper) CacheHitsInc()   { w.m.CacheHits.Inc() }
func (w *Wrapper) ErrorsInc()      { w.m.ErrorsTotal.Inc() }
