// Package worker provides async sample processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/behaviorsec/kestrel/internal/assess"
	"github.com/behaviorsec/kestrel/internal/domain"
)

// Worker consumes ingested samples from the EventBus and runs them through
// the assessment pipeline. The pipeline itself persists the assessment and
// publishes the completed/alert events.
type Worker struct {
	bus     domain.EventBus
	service *assess.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global worker)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, service *assess.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing samples for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker subscribes with a catch-all tenant ID for dev/test use.
// Production deployments subscribe per tenant.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicSampleIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSampleIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processSample(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSampleIngested,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processSample(ctx, msg.TenantID, msg)
}

// SampleMessage is the payload published to the sample.ingested topic.
type SampleMessage struct {
	TenantID  string          `json:"tenantId"`
	SubjectID string          `json:"subjectId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	TraceID   string          `json:"traceId,omitempty"`
	Sample    json.RawMessage `json:"sample"`
}

// processSample runs one ingested sample through the assessment pipeline.
func (w *Worker) processSample(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var sampleMsg SampleMessage
	if err := json.Unmarshal(msg.Payload, &sampleMsg); err != nil {
		slog.Error("failed to parse sample message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if sampleMsg.TenantID != "" {
		tenantID = sampleMsg.TenantID
	}

	traceID := sampleMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing sample",
		"tenant_id", tenantID,
		"subject_id", sampleMsg.SubjectID,
		"trace_id", traceID,
	)

	assessment, err := w.service.Process(ctx, &assess.Request{
		TenantID:  tenantID,
		SubjectID: sampleMsg.SubjectID,
		SessionID: sampleMsg.SessionID,
		TraceID:   traceID,
		Payload:   sampleMsg.Sample,
	})
	if err != nil {
		// Quality rejections are expected input noise, not worker faults.
		if verr, ok := err.(*assess.ValidationError); ok {
			slog.Warn("sample rejected by quality gate",
				"tenant_id", tenantID,
				"trace_id", traceID,
				"errors", verr.Result.Errors,
			)
			return nil
		}
		slog.Error("sample processing failed",
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	slog.Info("sample processed",
		"assessment_id", assessment.ID,
		"tenant_id", tenantID,
		"heuristic_level", assessment.Indicators.RiskLevel,
		"model_available", assessment.ModelAvailable,
		"disposition", assessment.Disposition,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
