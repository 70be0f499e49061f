package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"edge-scorer/internal/ml"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleModel(timeframe, version string) *ml.Model {
	return &ml.Model{
		Timeframe: timeframe,
		Version:   version,
		Trained:   true,
		Weights:   []float64{0.5, -0.25, 0.1},
		Bias:      0.05,
		FeatureStats: []ml.FeatureStat{
			{Max: 1, Mean: 0.4},
			{Max: 1, Mean: 0.5},
			{Max: 1, Mean: 0.6},
		},
		FeatureImportance: []ml.FeatureRank{
			{Index: 0, Name: "rsi", Weight: 0.5, Importance: 1},
			{Index: 1, Name: "macd_hist", Weight: -0.25, Importance: 0.5},
			{Index: 2, Name: "ema_align", Weight: 0.1, Importance: 0.2},
		},
		Samples:   42,
		Accuracy:  0.61,
		TrainedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestModelRoundtrip(t *testing.T) {
	s := newTestStore(t)

	saved := sampleModel(ml.TimeframeDayTrade, "v1")
	require.NoError(t, s.SaveModel(saved))

	loaded, err := s.LoadModel("dayTrade:v1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, saved.Weights, loaded.Weights)
	assert.Equal(t, saved.Bias, loaded.Bias)
	assert.True(t, loaded.Trained)
	assert.Equal(t, saved.FeatureStats, loaded.FeatureStats)
	assert.Equal(t, saved.FeatureImportance, loaded.FeatureImportance)
	assert.Equal(t, saved.Samples, loaded.Samples)
	assert.Equal(t, saved.Accuracy, loaded.Accuracy)
	assert.True(t, saved.TrainedAt.Equal(loaded.TrainedAt))
}

func TestLoadModelMissing(t *testing.T) {
	s := newTestStore(t)

	m, err := s.LoadModel("swing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestSaveModelNil(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.SaveModel(nil))
}

func TestLoadAllModelsSkipsCorrupt(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveModel(sampleModel(ml.TimeframeDayTrade, "")))
	require.NoError(t, s.SaveModel(sampleModel(ml.TimeframeSwing, "")))

	// Inject a corrupt record directly.
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte("broken"), []byte("{not json"))
	})
	require.NoError(t, err)

	models, err := s.LoadAllModels()
	require.NoError(t, err)
	assert.Len(t, models, 2, "corrupt record is skipped, valid ones survive")
}

func TestSampleRoundtrip(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendSample(ml.TrainingSample{
			Features:  []float64{float64(i), 1, 2},
			Label:     i % 2,
			Timeframe: ml.TimeframeDayTrade,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.AppendSample(ml.TrainingSample{
		Features:  []float64{9},
		Label:     1,
		Timeframe: ml.TimeframeSwing,
		Timestamp: base,
	}))

	day, err := s.LoadSamples(ml.TimeframeDayTrade)
	require.NoError(t, err)
	assert.Len(t, day, 5)
	assert.Equal(t, []float64{0, 1, 2}, day[0].Features, "prefix scan preserves insertion order")

	count, err := s.SampleCount(ml.TimeframeDayTrade)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	swing, err := s.LoadSamples(ml.TimeframeSwing)
	require.NoError(t, err)
	assert.Len(t, swing, 1)
}

func TestAppendSampleSameTimestamp(t *testing.T) {
	s := newTestStore(t)

	ts := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendSample(ml.TrainingSample{
			Features:  []float64{float64(i)},
			Timeframe: ml.TimeframeDayTrade,
			Timestamp: ts,
		}))
	}

	count, err := s.SampleCount(ml.TimeframeDayTrade)
	require.NoError(t, err)
	assert.Equal(t, 3, count, "shared bar timestamps must not collide")
}
