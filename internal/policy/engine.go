// Package policy provides the CEL-Go based disposition policy engine.
// Policies score assessment facts and map the score to an outcome through
// configured bands.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/behaviorsec/kestrel/internal/domain"
)

// Engine is the CEL-based policy evaluation engine.
type Engine struct {
	mu               sync.RWMutex
	env              *cel.Env
	compiledPolicies map[string]*CompiledPolicy
	historyGetter    HistoryGetter
	maxWorkers       int
}

// CompiledPolicy holds a pre-compiled CEL program.
type CompiledPolicy struct {
	Config  *domain.PolicyConfig
	Program cel.Program
}

// HistoryGetter returns the sample count for a subject in a time window.
type HistoryGetter func(ctx context.Context, tenantID, subjectID string, windowSecs int) (int64, error)

// NewEngine creates a new policy evaluation engine.
func NewEngine(historyGetter HistoryGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with the assessment fact variables
	env, err := cel.NewEnv(
		cel.Variable("sample", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("heuristic_score", cel.DoubleType),
		cel.Variable("model_score", cel.DoubleType),
		cel.Variable("prediction_probability", cel.DoubleType),
		cel.Variable("anomaly_score", cel.DoubleType),
		cel.Variable("quality_score", cel.DoubleType),
		cel.Variable("typing_speed_anomaly", cel.BoolType),
		cel.Variable("sensor_variance_high", cel.BoolType),
		cel.Variable("touch_pattern_irregular", cel.BoolType),
		cel.Variable("model_available", cel.BoolType),
		cel.Variable("recent_samples", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:              env,
		compiledPolicies: make(map[string]*CompiledPolicy),
		historyGetter:    historyGetter,
		maxWorkers:       maxWorkers,
	}, nil
}

// ValidatePolicy compiles and validates a policy without mutating loaded
// engine policies.
func (e *Engine) ValidatePolicy(cfg *domain.PolicyConfig) error {
	if cfg == nil {
		return fmt.Errorf("policy config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compilePolicy(cfg)
	return err
}

// LoadPolicy compiles and loads a policy into the engine.
func (e *Engine) LoadPolicy(cfg *domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compilePolicy(cfg)
	if err != nil {
		return err
	}

	e.compiledPolicies[cfg.ID] = compiled

	return nil
}

// LoadPolicies compiles and loads multiple policies.
func (e *Engine) LoadPolicies(configs []*domain.PolicyConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadPolicy(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateInput holds the assessment facts for policy evaluation.
type EvaluateInput struct {
	TenantID       string
	SampleID       string
	SubjectID      string
	Indicators     domain.RiskIndicatorSet
	ModelScore     float64
	Probability    float64
	AnomalyScore   float64
	QualityScore   float64
	ModelAvailable bool
	HistoryWindow  int // seconds
	AdditionalData map[string]any
}

// EvaluateAll evaluates all loaded policies in parallel.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.PolicyResult, error) {
	e.mu.RLock()
	policies := make([]*CompiledPolicy, 0, len(e.compiledPolicies))
	for _, p := range e.compiledPolicies {
		policies = append(policies, p)
	}
	e.mu.RUnlock()

	if len(policies) == 0 {
		return nil, nil
	}

	// Get recent sample count if getter is available
	var recentSamples int64
	if e.historyGetter != nil && input.HistoryWindow > 0 {
		count, err := e.historyGetter(ctx, input.TenantID, input.SubjectID, input.HistoryWindow)
		if err == nil {
			recentSamples = count
		}
	}

	// Prepare CEL activation variables
	activation := map[string]any{
		"sample": map[string]any{
			"id":         input.SampleID,
			"subject_id": input.SubjectID,
		},
		"heuristic_score":         input.Indicators.RiskScore,
		"model_score":             input.ModelScore,
		"prediction_probability":  input.Probability,
		"anomaly_score":           input.AnomalyScore,
		"quality_score":           input.QualityScore,
		"typing_speed_anomaly":    input.Indicators.TypingSpeedAnomaly,
		"sensor_variance_high":    input.Indicators.SensorVarianceHigh,
		"touch_pattern_irregular": input.Indicators.TouchPatternIrregular,
		"model_available":         input.ModelAvailable,
		"recent_samples":          recentSamples,
	}

	// Merge additional data
	for k, v := range input.AdditionalData {
		activation[k] = v
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.PolicyResult, len(policies))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, p := range policies {
		wg.Add(1)
		go func(idx int, cp *CompiledPolicy) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluatePolicy(ctx, cp, activation, input)
		}(i, p)
	}

	wg.Wait()

	return results, nil
}

// evaluatePolicy evaluates a single policy and returns the result.
func (e *Engine) evaluatePolicy(ctx context.Context, p *CompiledPolicy, activation map[string]any, input *EvaluateInput) domain.PolicyResult {
	start := time.Now()

	result := domain.PolicyResult{
		PolicyID: p.Config.ID,
		TenantID: input.TenantID,
		SampleID: input.SampleID,
		Weight:   p.Config.Weight,
	}

	out, _, err := p.Program.Eval(activation)
	if err != nil {
		result.Outcome = domain.PolicyOutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score

	result.Outcome, result.Reason = matchBand(score, p.Config.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the matching band for a score.
// Bands are evaluated in order. Lower bound inclusive, upper exclusive,
// except when upper is nil (meaning infinity).
func matchBand(score float64, bands []domain.PolicyBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		hasUpper := band.UpperLimit != nil
		upper := float64(1e9) // effectively infinity

		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if hasUpper {
			upper = *band.UpperLimit
		}

		if score >= lower {
			if !hasUpper || score < upper {
				return band.Outcome, band.Reason
			}
		}
	}

	// Default to allow if no band matches
	return domain.PolicyOutcomeAllow, "no matching band"
}

// PoliciesCount returns the number of loaded policies.
func (e *Engine) PoliciesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledPolicies)
}

// ReloadPolicies clears all existing policies and loads new ones.
// This enables hot-reloading of policies from the database.
func (e *Engine) ReloadPolicies(configs []*domain.PolicyConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newPolicies := make(map[string]*CompiledPolicy)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compilePolicy(cfg)
		if err != nil {
			return err
		}
		newPolicies[cfg.ID] = compiled
	}

	e.compiledPolicies = newPolicies

	return nil
}

// GetLoadedPolicies returns the currently loaded policy configurations.
func (e *Engine) GetLoadedPolicies() []*domain.PolicyConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]*domain.PolicyConfig, 0, len(e.compiledPolicies))
	for _, compiled := range e.compiledPolicies {
		policies = append(policies, compiled.Config)
	}
	return policies
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledPolicies = make(map[string]*CompiledPolicy)
	return nil
}

func (e *Engine) compilePolicy(cfg *domain.PolicyConfig) (*CompiledPolicy, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("policy %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", cfg.ID, err)
	}

	return &CompiledPolicy{
		Config:  cfg,
		Program: program,
	}, nil
}
