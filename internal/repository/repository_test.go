package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/behaviorsec/kestrel/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetSample", func(t *testing.T) {
		rec := &domain.SampleRecord{
			ID:                "sample-001",
			SubjectID:         "subject-001",
			SessionID:         "session-001",
			Payload:           []byte(`{"keyEvents":[],"touchEvents":[],"sensorData":[]}`),
			KeyEventCount:     4,
			TouchEventCount:   2,
			SensorSampleCount: 10,
			ReceivedAt:        time.Now().UTC(),
		}

		if err := repo.SaveSample(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveSample failed: %v", err)
		}

		retrieved, err := repo.GetSample(ctx, tenantID, rec.ID)
		if err != nil {
			t.Fatalf("GetSample failed: %v", err)
		}

		if retrieved.ID != rec.ID {
			t.Errorf("expected ID %s, got %s", rec.ID, retrieved.ID)
		}
		if retrieved.SubjectID != rec.SubjectID {
			t.Errorf("expected SubjectID %s, got %s", rec.SubjectID, retrieved.SubjectID)
		}
		if retrieved.KeyEventCount != 4 {
			t.Errorf("expected KeyEventCount 4, got %d", retrieved.KeyEventCount)
		}
		if string(retrieved.Payload) != string(rec.Payload) {
			t.Error("payload was not preserved verbatim")
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		_, err := repo.GetSample(ctx, otherTenant, "sample-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		rec := &domain.SampleRecord{ID: "sample-test"}

		if err := repo.SaveSample(ctx, "", rec); err == nil {
			t.Error("expected error for empty tenantID")
		}

		if _, err := repo.GetSample(ctx, "", "sample-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("CountSamplesBySubject", func(t *testing.T) {
		rec := &domain.SampleRecord{
			ID:         "sample-002",
			SubjectID:  "subject-001", // Same subject as sample-001
			Payload:    []byte(`{}`),
			ReceivedAt: time.Now().UTC(),
		}
		if err := repo.SaveSample(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveSample failed: %v", err)
		}

		since := time.Now().Add(-1 * time.Hour)
		count, err := repo.CountSamplesBySubject(ctx, tenantID, "subject-001", since)
		if err != nil {
			t.Fatalf("CountSamplesBySubject failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 samples, got %d", count)
		}

		count, err = repo.CountSamplesBySubject(ctx, tenantID, "unknown-subject", since)
		if err != nil {
			t.Fatalf("CountSamplesBySubject failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 samples for unknown subject, got %d", count)
		}
	})

	t.Run("SaveAndGetAssessment", func(t *testing.T) {
		a := &domain.Assessment{
			ID:        "assessment-001",
			SampleID:  "sample-001",
			SubjectID: "subject-001",
			Timestamp: time.Now().UTC(),
			Indicators: domain.RiskIndicatorSet{
				TypingSpeedAnomaly: true,
				RiskScore:          0.25,
				RiskLevel:          domain.RiskMedium,
			},
			ModelAvailable: true,
			Prediction: &domain.Prediction{
				Probability:  0.82,
				Prediction:   1,
				Confidence:   0.64,
				AnomalyScore: -0.1,
			},
			ModelRiskScore: 0.3,
			ModelRiskLevel: domain.RiskMedium,
			Quality: domain.ValidationResult{
				IsValid:          true,
				Errors:           []string{},
				Warnings:         []string{"Very few key events detected"},
				DataQualityScore: 0.5,
			},
			Features:    make(domain.FeatureVector, domain.FeatureVectorLen),
			Disposition: domain.DispositionChallenge,
			PolicyResults: []domain.PolicyResult{
				{PolicyID: "policy-001", Outcome: domain.PolicyOutcomeChallenge, Score: 1.0},
			},
			Metadata: domain.AssessmentMetadata{TraceID: "trace-001", TotalMs: 12},
		}

		if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, tenantID, a.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}

		if retrieved.ID != a.ID {
			t.Errorf("expected ID %s, got %s", a.ID, retrieved.ID)
		}
		if !retrieved.Indicators.TypingSpeedAnomaly {
			t.Error("indicator flag lost on round trip")
		}
		if retrieved.Prediction == nil || retrieved.Prediction.Probability != 0.82 {
			t.Errorf("prediction lost on round trip: %+v", retrieved.Prediction)
		}
		if !retrieved.ModelAvailable {
			t.Error("model availability lost on round trip")
		}
		if retrieved.Disposition != domain.DispositionChallenge {
			t.Errorf("expected challenge disposition, got %s", retrieved.Disposition)
		}
		if len(retrieved.Features) != domain.FeatureVectorLen {
			t.Errorf("expected %d features, got %d", domain.FeatureVectorLen, len(retrieved.Features))
		}
		if len(retrieved.PolicyResults) != 1 {
			t.Errorf("expected 1 policy result, got %d", len(retrieved.PolicyResults))
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("metadata lost on round trip: %+v", retrieved.Metadata)
		}
	})

	t.Run("AssessmentWithoutPrediction", func(t *testing.T) {
		a := &domain.Assessment{
			ID:          "assessment-002",
			SampleID:    "sample-002",
			SubjectID:   "subject-001",
			Timestamp:   time.Now().UTC(),
			Disposition: domain.DispositionAllow,
		}
		if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
			t.Fatalf("SaveAssessment failed: %v", err)
		}

		retrieved, err := repo.GetAssessment(ctx, tenantID, a.ID)
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if retrieved.Prediction != nil {
			t.Error("expected nil prediction when model was unavailable")
		}
		if retrieved.ModelAvailable {
			t.Error("expected modelAvailable false")
		}
	})

	t.Run("SaveAndGetPolicy", func(t *testing.T) {
		lower := 1.0
		policy := &domain.PolicyConfig{
			ID:          "policy-001",
			Name:        "Heuristic Gate",
			Description: "Denies samples with high heuristic risk",
			Version:     "1.0.0",
			Expression:  "heuristic_score > 0.5 ? 1.0 : 0.0",
			Bands: []domain.PolicyBand{
				{LowerLimit: &lower, Outcome: domain.PolicyOutcomeDeny, Reason: "High heuristic risk"},
			},
			Weight:  1.0,
			Enabled: true,
		}

		if err := repo.SavePolicy(ctx, tenantID, policy); err != nil {
			t.Fatalf("SavePolicy failed: %v", err)
		}

		retrieved, err := repo.GetPolicy(ctx, tenantID, policy.ID)
		if err != nil {
			t.Fatalf("GetPolicy failed: %v", err)
		}
		if retrieved.Expression != policy.Expression {
			t.Errorf("expression lost on round trip: %q", retrieved.Expression)
		}
		if len(retrieved.Bands) != 1 || retrieved.Bands[0].Outcome != domain.PolicyOutcomeDeny {
			t.Errorf("bands lost on round trip: %+v", retrieved.Bands)
		}

		policies, err := repo.ListPolicies(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListPolicies failed: %v", err)
		}
		if len(policies) != 1 {
			t.Errorf("expected 1 policy, got %d", len(policies))
		}
	})

	t.Run("DeletePolicy", func(t *testing.T) {
		if err := repo.DeletePolicy(ctx, tenantID, "policy-001"); err != nil {
			t.Fatalf("DeletePolicy failed: %v", err)
		}

		_, err := repo.GetPolicy(ctx, tenantID, "policy-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound after delete, got: %v", err)
		}

		if err := repo.DeletePolicy(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for missing policy, got: %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetSample(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetAssessment(ctx, tenantID, "nonexistent")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
