package model

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"math"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// Handle owns one reference to each model collaborator. Prediction calls
// receive the handle explicitly; there is no ambient model state, so
// swapping models is creating a new handle and concurrent use needs no
// locking.
type Handle struct {
	scaler     domain.Scaler
	reducer    domain.Reducer
	classifier domain.Classifier
	detector   domain.AnomalyDetector

	cache    domain.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewHandle wires collaborators into a handle. The cache is optional;
// when present, predictions are memoized by feature-vector digest.
func NewHandle(scaler domain.Scaler, reducer domain.Reducer, classifier domain.Classifier, detector domain.AnomalyDetector, cache domain.Cache, cacheTTL time.Duration, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		scaler:     scaler,
		reducer:    reducer,
		classifier: classifier,
		detector:   detector,
		cache:      cache,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// NewHandleFromClient builds a handle whose four collaborators are all
// served by one model service client. A nil client yields a nil handle.
func NewHandleFromClient(c *Client, cache domain.Cache, cacheTTL time.Duration, logger *slog.Logger) *Handle {
	if c == nil {
		return nil
	}
	return NewHandle(c, c, c, c, cache, cacheTTL, logger)
}

// Available reports whether the handle can serve predictions.
func (h *Handle) Available() bool {
	return h != nil && h.scaler != nil && h.reducer != nil && h.classifier != nil && h.detector != nil
}

// Predict runs the full pipeline: scale, reduce, classify, anomaly-score.
// Returns domain.ErrModelUnavailable when the handle is not wired. The
// collaborators are deterministic for a fixed trained model, so results
// for identical vectors are served from cache when one is configured.
func (h *Handle) Predict(ctx context.Context, tenantID string, features []float64) (*domain.Prediction, error) {
	if !h.Available() {
		return nil, domain.ErrModelUnavailable
	}

	digest := VectorDigest(features)
	if h.cache != nil && h.cacheTTL > 0 {
		if cached, err := h.cache.GetPrediction(ctx, tenantID, digest); err == nil && cached != nil {
			return cached, nil
		}
	}

	scaled, err := h.scaler.Scale(ctx, features)
	if err != nil {
		return nil, err
	}
	reduced, err := h.reducer.Reduce(ctx, scaled)
	if err != nil {
		return nil, err
	}
	probability, err := h.classifier.Classify(ctx, reduced)
	if err != nil {
		return nil, err
	}
	anomalyScore, outlier, err := h.detector.Score(ctx, reduced)
	if err != nil {
		return nil, err
	}

	p := &domain.Prediction{
		Probability:  probability,
		Confidence:   math.Abs(probability-0.5) * 2,
		AnomalyScore: anomalyScore,
		IsAnomaly:    outlier,
		Reduced:      reduced,
	}
	if probability > 0.5 {
		p.Prediction = 1
	}

	if h.cache != nil && h.cacheTTL > 0 {
		if err := h.cache.SetPrediction(ctx, tenantID, digest, p, h.cacheTTL); err != nil {
			h.logger.Warn("prediction cache write failed", "error", err)
		}
	}
	return p, nil
}

// VectorDigest returns a stable hex digest of a feature vector, used as
// the prediction cache key.
func VectorDigest(features []float64) string {
	hash := sha256.New()
	buf := make([]byte, 8)
	for _, f := range features {
		binary.BigEndian.PutUint64(buf, math.Float64bits(f))
		hash.Write(buf)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
