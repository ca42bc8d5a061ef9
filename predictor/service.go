// Package predictor serves heart disease predictions from a classifier loaded
// once at startup.
package predictor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"heartapi/history"
	"heartapi/ml"
	"heartapi/monitoring"
)

// AuditSink receives a copy of every history entry.
type AuditSink interface {
	Record(ctx context.Context, entry history.Entry) error
}

type Options struct {
	// History receives an entry per successful prediction; nil disables it.
	History *history.Log
	// Audit is an optional durable copy of History.
	Audit AuditSink
	// CacheSize memoizes labels per feature vector; 0 disables the cache.
	CacheSize int
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	// Now is the clock used for history timestamps.
	Now func() time.Time
}

type featureKey [ml.FeatureCount]float64

// Service is the prediction state shared by all requests. The model reference
// is fixed at construction: either Loaded or Absent.
type Service struct {
	model   ml.Classifier
	history *history.Log
	audit   AuditSink
	cache   *lru.Cache[featureKey, int]
	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a Service. A nil model puts the service in degraded mode.
func New(model ml.Classifier, opts Options) (*Service, error) {
	s := &Service{
		model:   model,
		history: opts.History,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[featureKey, int](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}
	s.metrics.SetModelLoaded(s.Loaded())
	return s, nil
}

// LoadModel loads the artifact, returning nil instead of an error so the
// caller can start in degraded mode.
func LoadModel(modelType, path string, logger *zap.Logger) ml.Classifier {
	model, err := ml.LoadModel(modelType, path)
	if err != nil {
		logger.Error("❌ Error loading model",
			zap.String("type", modelType),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil
	}
	logger.Info("✅ Model loaded successfully.", zap.String("type", modelType), zap.String("path", path))
	return model
}

func (s *Service) Loaded() bool {
	return s.model != nil
}

// State names the model state.
func (s *Service) State() string {
	if s.Loaded() {
		return "Loaded"
	}
	return "Absent"
}

// Predict classifies one feature vector and records it in the history.
func (s *Service) Predict(ctx context.Context, features []float64) (int, error) {
	start := time.Now()

	if !s.Loaded() {
		s.logger.Error("❌ Model not loaded.")
		s.metrics.ObservePrediction(monitoring.OutcomeRejected, time.Since(start))
		return 0, ErrModelNotLoaded
	}
	if len(features) != ml.FeatureCount {
		err := &FeatureCountError{Expected: ml.FeatureCount, Got: len(features)}
		s.logger.Error(err.Error())
		s.metrics.ObservePrediction(monitoring.OutcomeRejected, time.Since(start))
		return 0, err
	}

	label, err := s.infer(ctx, features)
	if err != nil {
		s.logger.Error("❌ Prediction error", zap.Error(err))
		s.metrics.ObservePrediction(monitoring.OutcomeError, time.Since(start))
		return 0, err
	}

	s.record(ctx, features, label)
	s.logger.Info("✅ Prediction", zap.Int("prediction", label))
	s.metrics.ObservePrediction(strconv.Itoa(label), time.Since(start))
	return label, nil
}

func (s *Service) infer(ctx context.Context, features []float64) (int, error) {
	var key featureKey
	copy(key[:], features)

	if s.cache != nil {
		if label, ok := s.cache.Get(key); ok {
			s.metrics.CacheHit()
			return label, nil
		}
		s.metrics.CacheMiss()
	}

	row, err := ml.NewRow(features)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	label, err := s.classify(ctx, row)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		s.cache.Add(key, label)
	}
	return label, nil
}

// classify converts a classifier panic into an InferenceError.
func (s *Service) classify(ctx context.Context, row ml.Row) (label int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InferenceError{Err: fmt.Errorf("%v", r)}
		}
	}()

	label, err = s.model.Predict(ctx, row)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	return label, nil
}

func (s *Service) record(ctx context.Context, features []float64, label int) {
	if s.history == nil {
		return
	}
	entry := history.Entry{
		Timestamp:  s.now().Format(time.RFC3339Nano),
		Features:   append([]float64(nil), features...),
		Prediction: label,
	}
	n := s.history.Append(entry)
	s.metrics.SetHistoryEntries(n)

	if s.audit != nil {
		// the entry is already in history; a client hangup must not drop the audit row
		if err := s.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Warn("Failed to audit prediction", zap.Error(err))
		}
	}
}
