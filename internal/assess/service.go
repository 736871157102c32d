// Package assess orchestrates the behavioral assessment pipeline: quality
// gate, normalization, feature extraction, heuristic and model scoring,
// policy disposition, persistence, and event publication. The HTTP handler
// and the async worker both run samples through this service.
package assess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/behaviorsec/kestrel/internal/decision"
	"github.com/behaviorsec/kestrel/internal/domain"
	"github.com/behaviorsec/kestrel/internal/features"
	"github.com/behaviorsec/kestrel/internal/heuristics"
	"github.com/behaviorsec/kestrel/internal/history"
	"github.com/behaviorsec/kestrel/internal/model"
	"github.com/behaviorsec/kestrel/internal/normalize"
	"github.com/behaviorsec/kestrel/internal/policy"
	"github.com/behaviorsec/kestrel/internal/quality"
)

const engineVersion = "kestrel-1.0"

// defaultHistoryWindowSecs is the lookback window for per-subject sample
// counts fed to policies and assessment metadata.
const defaultHistoryWindowSecs = 3600

// ValidationError carries the quality result for a sample rejected before
// the pipeline ran.
type ValidationError struct {
	Result domain.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sample failed quality validation: %d errors", len(e.Result.Errors))
}

// Service runs the assessment pipeline.
type Service struct {
	validator  *quality.Validator
	normalizer *normalize.EventStreamNormalizer
	extractor  *features.Extractor
	heuristics *heuristics.Engine
	aggregator *decision.Aggregator
	model      *model.Handle
	policies   *policy.Engine
	repo       domain.Repository
	bus        domain.EventBus
	history    *history.Service
	logger     *slog.Logger

	historyWindowSecs int
}

// Config wires the pipeline's collaborators. Model, Policies, Bus, and
// History are optional; the pipeline degrades without them.
type Config struct {
	Model    *model.Handle
	Policies *policy.Engine
	Repo     domain.Repository
	Bus      domain.EventBus
	History  *history.Service
	Logger   *slog.Logger

	// HistoryWindowSecs overrides the default per-subject lookback window.
	HistoryWindowSecs int
}

// NewService creates the pipeline service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.HistoryWindowSecs
	if window <= 0 {
		window = defaultHistoryWindowSecs
	}
	return &Service{
		validator:         quality.NewValidator(),
		normalizer:        normalize.NewEventStreamNormalizer(),
		extractor:         features.NewExtractor(logger),
		heuristics:        heuristics.NewEngine(),
		aggregator:        decision.NewAggregator(),
		model:             cfg.Model,
		policies:          cfg.Policies,
		repo:              cfg.Repo,
		bus:               cfg.Bus,
		history:           cfg.History,
		logger:            logger,
		historyWindowSecs: window,
	}
}

// Request is one sample submitted for assessment.
type Request struct {
	TenantID  string
	SubjectID string
	SessionID string
	TraceID   string

	// Payload is the raw sample JSON as received from the collector.
	Payload []byte
}

// Validate runs only the quality gate over a raw payload.
func (s *Service) Validate(payload []byte) (domain.ValidationResult, error) {
	raw, err := decodePayload(payload)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return s.validator.Validate(raw), nil
}

// Extract runs normalization and feature extraction over a raw payload.
func (s *Service) Extract(payload []byte) (domain.FeatureVector, error) {
	sample, err := decodeSample(payload)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(s.normalizer.Normalize(sample)), nil
}

// Process runs one sample through the full pipeline. A sample that fails
// the quality gate returns *ValidationError and nothing is persisted.
// Model unavailability degrades the assessment instead of failing it.
func (s *Service) Process(ctx context.Context, req *Request) (*domain.Assessment, error) {
	if req.TenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	start := time.Now()

	raw, err := decodePayload(req.Payload)
	if err != nil {
		return nil, err
	}

	// 1. Quality gate
	validation := s.validator.Validate(raw)
	if !validation.IsValid {
		return nil, &ValidationError{Result: validation}
	}

	sample, err := decodeSample(req.Payload)
	if err != nil {
		return nil, err
	}

	// 2. Normalize, 3. extract
	normalized := s.normalizer.Normalize(sample)

	extractStart := time.Now()
	vector := s.extractor.Extract(normalized)
	extractMs := time.Since(extractStart).Milliseconds()

	// 4. Heuristic signal over the raw sample
	indicators := s.heuristics.Assess(sample)

	assessment := &domain.Assessment{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		SubjectID:  req.SubjectID,
		Timestamp:  time.Now().UTC(),
		Indicators: indicators,
		Quality:    validation,
		Features:   vector,
	}

	// 5. Model signal, degraded to heuristics-only when unavailable
	var predictMs int64
	if s.model.Available() {
		predictStart := time.Now()
		prediction, err := s.model.Predict(ctx, req.TenantID, vector)
		predictMs = time.Since(predictStart).Milliseconds()

		switch {
		case err == nil:
			assessment.ModelAvailable = true
			assessment.Prediction = prediction
			assessment.ModelRiskScore = s.aggregator.Aggregate(
				prediction.Probability, prediction.AnomalyScore, prediction.Reduced)
			assessment.ModelRiskLevel = decision.LevelFor(assessment.ModelRiskScore)

		case errors.Is(err, domain.ErrModelUnavailable):
			s.logger.Warn("model unavailable, degrading to heuristics",
				"tenant_id", req.TenantID,
			)

		default:
			s.logger.Error("model prediction failed, degrading to heuristics",
				"tenant_id", req.TenantID,
				"error", err,
			)
		}
	}

	// Persist the raw sample before policy evaluation so the history
	// window includes it.
	record := s.buildRecord(req, sample)
	assessment.SampleID = record.ID
	if s.repo != nil {
		if err := s.repo.SaveSample(ctx, req.TenantID, record); err != nil {
			return nil, fmt.Errorf("failed to save sample: %w", err)
		}
	}
	if s.history != nil && req.SubjectID != "" {
		window := time.Duration(s.historyWindowSecs) * time.Second
		if _, err := s.history.RecordSample(ctx, req.TenantID, req.SubjectID, window); err != nil {
			s.logger.Warn("history counter update failed", "error", err)
		}
	}

	// 6. Policy disposition
	assessment.Disposition = domain.DispositionAllow
	if s.policies != nil {
		var prob, anomaly float64
		if assessment.Prediction != nil {
			prob = assessment.Prediction.Probability
			anomaly = assessment.Prediction.AnomalyScore
		}
		results, err := s.policies.EvaluateAll(ctx, &policy.EvaluateInput{
			TenantID:       req.TenantID,
			SampleID:       record.ID,
			SubjectID:      req.SubjectID,
			Indicators:     indicators,
			ModelScore:     assessment.ModelRiskScore,
			Probability:    prob,
			AnomalyScore:   anomaly,
			QualityScore:   validation.DataQualityScore,
			ModelAvailable: assessment.ModelAvailable,
			HistoryWindow:  s.historyWindowSecs,
		})
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed: %w", err)
		}
		assessment.PolicyResults = results
		assessment.Disposition = decision.Resolve(results)
		assessment.Metadata.PoliciesEvaluated = len(results)
	}

	var recentSamples int64
	if s.history != nil && req.SubjectID != "" {
		if count, err := s.history.GetSampleCount(ctx, req.TenantID, req.SubjectID, s.historyWindowSecs); err == nil {
			recentSamples = count
		}
	}

	assessment.Metadata.TraceID = req.TraceID
	assessment.Metadata.ExtractMs = extractMs
	assessment.Metadata.PredictMs = predictMs
	assessment.Metadata.TotalMs = time.Since(start).Milliseconds()
	assessment.Metadata.RecentSamples = recentSamples
	assessment.Metadata.EngineVersion = engineVersion

	// 7. Persist and publish
	if s.repo != nil {
		if err := s.repo.SaveAssessment(ctx, req.TenantID, assessment); err != nil {
			return nil, fmt.Errorf("failed to save assessment: %w", err)
		}
	}
	s.publish(ctx, assessment)

	return assessment, nil
}

// publish emits completion and alert events. Publication failures are
// logged, not surfaced: the assessment is already persisted.
func (s *Service) publish(ctx context.Context, a *domain.Assessment) {
	if s.bus == nil {
		return
	}

	payload, err := json.Marshal(a)
	if err != nil {
		s.logger.Error("failed to marshal assessment event", "error", err)
		return
	}

	if err := s.bus.Publish(ctx, a.TenantID, domain.TopicAssessmentCompleted, payload); err != nil {
		s.logger.Error("failed to publish assessment event",
			"assessment_id", a.ID,
			"error", err,
		)
	}

	if a.IsAlert() {
		if err := s.bus.Publish(ctx, a.TenantID, domain.TopicAssessmentAlert, payload); err != nil {
			s.logger.Error("failed to publish alert event",
				"assessment_id", a.ID,
				"error", err,
			)
		}
	}
}

func (s *Service) buildRecord(req *Request, sample *domain.BehavioralSample) *domain.SampleRecord {
	rec := &domain.SampleRecord{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		SubjectID:  req.SubjectID,
		SessionID:  req.SessionID,
		Payload:    req.Payload,
		ReceivedAt: time.Now().UTC(),
	}
	if sample != nil {
		rec.KeyEventCount = len(sample.KeyEvents)
		rec.TouchEventCount = len(sample.TouchEvents)
		rec.SensorSampleCount = len(sample.SensorData)
	}
	return rec
}

func decodePayload(payload []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("invalid sample payload: %w", err)
	}
	return raw, nil
}

func decodeSample(payload []byte) (*domain.BehavioralSample, error) {
	var sample domain.BehavioralSample
	if err := json.Unmarshal(payload, &sample); err != nil {
		return nil, fmt.Errorf("invalid sample payload: %w", err)
	}
	return &sample, nil
}
