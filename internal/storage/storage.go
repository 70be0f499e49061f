// Package storage persists trained calibrator models and labeled training
// samples. It uses BoltDB as the underlying engine and stores every record
// as JSON, so individual corrupt records can be skipped on load instead of
// poisoning the whole store.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"edge-scorer/internal/ml"
)

const (
	modelsBucket  = "models"
	samplesBucket = "samples"
)

// Store provides persistent storage for calibrator state.
// All operations are safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the store under dataPath and ensures buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "edge-scorer.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucket)); err != nil {
			return fmt.Errorf("create models bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(samplesBucket)); err != nil {
			return fmt.Errorf("create samples bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveModel persists a trained model under its timeframe[:version] key,
// replacing any previous model for that key.
func (s *Store) SaveModel(m *ml.Model) error {
	if m == nil {
		return fmt.Errorf("nil model")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal model: %w", err)
		}
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(m.Key()), data)
	})
}

// LoadModel returns the model stored under key, or nil when absent.
func (s *Store) LoadModel(key string) (*ml.Model, error) {
	var m *ml.Model
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get([]byte(key))
		if data == nil {
			return nil
		}
		var decoded ml.Model
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("unmarshal model %q: %w", key, err)
		}
		m = &decoded
		return nil
	})
	return m, err
}

// LoadAllModels returns every stored model. Corrupt records are logged and
// skipped so one bad entry never blocks startup.
func (s *Store) LoadAllModels() ([]*ml.Model, error) {
	var models []*ml.Model
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(k, v []byte) error {
			var m ml.Model
			if err := json.Unmarshal(v, &m); err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("skipping corrupt model record")
				return nil
			}
			models = append(models, &m)
			return nil
		})
	})
	return models, err
}

// AppendSample stores one training sample, keyed timeframe_timestamp_seq so
// per-timeframe loads are cheap prefix scans in insertion order. The bucket
// sequence breaks ties between samples sharing a bar timestamp.
func (s *Store) AppendSample(sample ml.TrainingSample) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(sample)
		if err != nil {
			return fmt.Errorf("marshal sample: %w", err)
		}
		b := tx.Bucket([]byte(samplesBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("sample sequence: %w", err)
		}
		ts := sample.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		key := fmt.Sprintf("%s_%020d_%012d", sample.Timeframe, ts.UnixNano(), seq)
		return b.Put([]byte(key), data)
	})
}

// LoadSamples returns the stored samples for one timeframe, skipping corrupt
// records.
func (s *Store) LoadSamples(timeframe string) ([]ml.TrainingSample, error) {
	var samples []ml.TrainingSample
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(samplesBucket)).Cursor()
		prefix := []byte(timeframe + "_")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var sample ml.TrainingSample
			if err := json.Unmarshal(v, &sample); err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("skipping corrupt sample record")
				continue
			}
			samples = append(samples, sample)
		}
		return nil
	})
	return samples, err
}

// SampleCount reports how many samples one timeframe has accumulated.
func (s *Store) SampleCount(timeframe string) (int, error) {
	count := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(samplesBucket)).Cursor()
		prefix := []byte(timeframe + "_")
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}
