package policy

import (
	"context"
	"fmt"
	"testing"

	"github.com/behaviorsec/kestrel/internal/domain"
)

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.PoliciesCount() != 0 {
		t.Errorf("expected 0 policies, got %d", engine.PoliciesCount())
	}
}

func TestLoadPolicy(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	policy := &domain.PolicyConfig{
		ID:         "test-policy-001",
		Name:       "Test Policy",
		Expression: "heuristic_score > 0.5",
		Bands:      []domain.PolicyBand{},
		Weight:     1.0,
		Enabled:    true,
	}

	if err := engine.LoadPolicy(policy); err != nil {
		t.Fatalf("failed to load policy: %v", err)
	}

	if engine.PoliciesCount() != 1 {
		t.Errorf("expected 1 policy, got %d", engine.PoliciesCount())
	}
}

func TestLoadInvalidPolicy(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	policy := &domain.PolicyConfig{
		ID:         "invalid-policy",
		Name:       "Invalid Policy",
		Expression: "this is not valid CEL !!!",
		Enabled:    true,
	}

	if err := engine.LoadPolicy(policy); err == nil {
		t.Error("expected error for invalid CEL expression")
	}
}

func TestEvaluateScoreBands(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	zero := 0.0
	one := 1.0

	policy := &domain.PolicyConfig{
		ID:         "heuristic-gate",
		Name:       "Heuristic Gate",
		Expression: "heuristic_score > 0.5 ? 1.0 : 0.0",
		Bands: []domain.PolicyBand{
			{LowerLimit: &zero, UpperLimit: &one, Outcome: domain.PolicyOutcomeAllow, Reason: "Low heuristic risk"},
			{LowerLimit: &one, UpperLimit: nil, Outcome: domain.PolicyOutcomeDeny, Reason: "High heuristic risk"},
		},
		Weight:  1.0,
		Enabled: true,
	}
	engine.LoadPolicy(policy)

	ctx := context.Background()

	// Low heuristic score
	input := &EvaluateInput{
		TenantID:   "tenant-001",
		SampleID:   "sample-001",
		Indicators: domain.RiskIndicatorSet{RiskScore: 0.25},
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score != 0.0 {
		t.Errorf("expected score 0.0 for low risk, got %.2f", results[0].Score)
	}
	if results[0].Outcome != domain.PolicyOutcomeAllow {
		t.Errorf("expected allow, got %s", results[0].Outcome)
	}

	// High heuristic score
	input.Indicators.RiskScore = 0.75
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for high risk, got %.2f", results[0].Score)
	}
	if results[0].Outcome != domain.PolicyOutcomeDeny {
		t.Errorf("expected deny, got %s", results[0].Outcome)
	}
}

func TestEvaluateBooleanPolicy(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	policy := &domain.PolicyConfig{
		ID:         "flag-check",
		Name:       "Typing Flag Check",
		Expression: "typing_speed_anomaly && sensor_variance_high",
		Bands:      []domain.PolicyBand{},
		Weight:     1.0,
		Enabled:    true,
	}
	engine.LoadPolicy(policy)

	ctx := context.Background()

	input := &EvaluateInput{
		TenantID: "tenant-001",
		SampleID: "sample-001",
		Indicators: domain.RiskIndicatorSet{
			TypingSpeedAnomaly: true,
		},
	}
	results, _ := engine.EvaluateAll(ctx, input)
	if results[0].Score != 0.0 {
		t.Errorf("expected score 0.0 with one flag, got %.2f", results[0].Score)
	}

	input.Indicators.SensorVarianceHigh = true
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 with both flags, got %.2f", results[0].Score)
	}
}

func TestModelAvailabilityPolicy(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	zero := 0.0
	one := 1.0

	// Challenge when the model is down and heuristics are not clean.
	policy := &domain.PolicyConfig{
		ID:         "degraded-mode",
		Name:       "Degraded Mode Gate",
		Expression: "!model_available && heuristic_score > 0.2 ? 1.0 : 0.0",
		Bands: []domain.PolicyBand{
			{LowerLimit: &zero, UpperLimit: &one, Outcome: domain.PolicyOutcomeAllow, Reason: "Normal"},
			{LowerLimit: &one, UpperLimit: nil, Outcome: domain.PolicyOutcomeChallenge, Reason: "Model down with elevated heuristics"},
		},
		Weight:  1.0,
		Enabled: true,
	}
	engine.LoadPolicy(policy)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:       "t1",
		SampleID:       "s1",
		Indicators:     domain.RiskIndicatorSet{RiskScore: 0.5},
		ModelAvailable: false,
	}

	results, _ := engine.EvaluateAll(ctx, input)
	if results[0].Outcome != domain.PolicyOutcomeChallenge {
		t.Errorf("expected challenge, got %s", results[0].Outcome)
	}

	input.ModelAvailable = true
	results, _ = engine.EvaluateAll(ctx, input)
	if results[0].Outcome != domain.PolicyOutcomeAllow {
		t.Errorf("expected allow, got %s", results[0].Outcome)
	}
}

func TestHistoryPolicy(t *testing.T) {
	// Mock history getter that returns a fixed count
	historyGetter := func(ctx context.Context, tenantID, subjectID string, windowSecs int) (int64, error) {
		return 15, nil // Simulates 15 samples in window
	}

	engine, _ := NewEngine(historyGetter, 5)
	defer engine.Close()

	zero := 0.0
	half := 0.5
	one := 1.0

	policy := &domain.PolicyConfig{
		ID:          "frequency-check-001",
		Name:        "Sample Frequency Check",
		Description: "Flags subjects submitting unusually many samples",
		Version:     "1.0.0",
		Expression:  "recent_samples > 10 ? 1.0 : (recent_samples > 5 ? 0.5 : 0.0)",
		Bands: []domain.PolicyBand{
			{LowerLimit: &zero, UpperLimit: &half, Outcome: domain.PolicyOutcomeAllow, Reason: "Normal frequency"},
			{LowerLimit: &half, UpperLimit: &one, Outcome: domain.PolicyOutcomeChallenge, Reason: "Elevated frequency"},
			{LowerLimit: &one, UpperLimit: nil, Outcome: domain.PolicyOutcomeDeny, Reason: "High frequency"},
		},
		Weight:  1.0,
		Enabled: true,
	}
	engine.LoadPolicy(policy)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:      "tenant-001",
		SampleID:      "sample-001",
		SubjectID:     "subject-001",
		HistoryWindow: 3600, // 1 hour
	}

	results, _ := engine.EvaluateAll(ctx, input)

	// With 15 samples (> 10), should return 1.0 (deny)
	if results[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for high frequency, got %.2f", results[0].Score)
	}
	if results[0].Outcome != domain.PolicyOutcomeDeny {
		t.Errorf("expected deny for high frequency, got %s", results[0].Outcome)
	}
}

func TestParallelExecution(t *testing.T) {
	engine, _ := NewEngine(nil, 3)
	defer engine.Close()

	// Load multiple policies
	for i := 0; i < 10; i++ {
		policy := &domain.PolicyConfig{
			ID:         fmt.Sprintf("policy-%d", i),
			Name:       fmt.Sprintf("Policy %d", i),
			Expression: "quality_score >= 0.0",
			Weight:     1.0,
			Enabled:    true,
		}
		engine.LoadPolicy(policy)
	}

	if engine.PoliciesCount() != 10 {
		t.Fatalf("expected 10 policies, got %d", engine.PoliciesCount())
	}

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID:     "tenant-001",
		SampleID:     "sample-001",
		QualityScore: 0.5,
	}

	results, err := engine.EvaluateAll(ctx, input)
	if err != nil {
		t.Fatalf("parallel evaluation failed: %v", err)
	}

	if len(results) != 10 {
		t.Errorf("expected 10 results, got %d", len(results))
	}

	for i, r := range results {
		if r.Score != 1.0 {
			t.Errorf("policy %d: expected score 1.0, got %.2f", i, r.Score)
		}
	}
}

func TestReloadPolicies(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	engine.LoadPolicy(&domain.PolicyConfig{
		ID:         "old-policy",
		Expression: "heuristic_score > 0.5",
		Enabled:    true,
	})

	err := engine.ReloadPolicies([]*domain.PolicyConfig{
		{ID: "new-policy-1", Expression: "model_score > 0.7", Enabled: true},
		{ID: "new-policy-2", Expression: "anomaly_score < -0.5", Enabled: true},
		{ID: "disabled-policy", Expression: "quality_score < 0.1", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if engine.PoliciesCount() != 2 {
		t.Errorf("expected 2 policies after reload, got %d", engine.PoliciesCount())
	}

	loaded := engine.GetLoadedPolicies()
	for _, p := range loaded {
		if p.ID == "old-policy" {
			t.Error("old policy should be gone after reload")
		}
		if p.ID == "disabled-policy" {
			t.Error("disabled policy should not be loaded")
		}
	}
}

func TestPolicyResultMetadata(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	policy := &domain.PolicyConfig{
		ID:         "meta-test",
		Expression: "quality_score >= 0.0",
		Weight:     0.75,
		Enabled:    true,
	}
	engine.LoadPolicy(policy)

	ctx := context.Background()
	input := &EvaluateInput{
		TenantID: "tenant-123",
		SampleID: "sample-456",
	}

	results, _ := engine.EvaluateAll(ctx, input)

	if results[0].PolicyID != "meta-test" {
		t.Errorf("expected PolicyID 'meta-test', got '%s'", results[0].PolicyID)
	}
	if results[0].TenantID != "tenant-123" {
		t.Errorf("expected TenantID 'tenant-123', got '%s'", results[0].TenantID)
	}
	if results[0].SampleID != "sample-456" {
		t.Errorf("expected SampleID 'sample-456', got '%s'", results[0].SampleID)
	}
	if results[0].Weight != 0.75 {
		t.Errorf("expected Weight 0.75, got %.2f", results[0].Weight)
	}
	if results[0].ProcessMs < 0 {
		t.Error("ProcessMs should be non-negative")
	}
}

func TestValidatePolicyDoesNotLoad(t *testing.T) {
	engine, _ := NewEngine(nil, 5)
	defer engine.Close()

	err := engine.ValidatePolicy(&domain.PolicyConfig{
		ID:         "validate-only",
		Expression: "model_score > 0.5",
	})
	if err != nil {
		t.Fatalf("validation failed: %v", err)
	}
	if engine.PoliciesCount() != 0 {
		t.Error("validation must not load the policy")
	}
}
