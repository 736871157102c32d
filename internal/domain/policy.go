package domain

// PolicyConfig defines a disposition policy: a CEL expression evaluated
// over assessment facts, with score bands mapping the result to an outcome.
type PolicyConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression must return bool, int, or double.
	Expression string `json:"expression"`

	// Bands map the expression score to an outcome.
	Bands []PolicyBand `json:"bands"`

	Weight  float64 `json:"weight"`
	Enabled bool    `json:"enabled"`
}

// PolicyBand maps a score range to an outcome. Lower bound inclusive,
// upper exclusive; nil upper means unbounded.
type PolicyBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".allow", ".challenge", ".deny"
	Reason     string   `json:"reason"`
}

// PolicyResult is the output of evaluating one policy against one sample.
type PolicyResult struct {
	PolicyID  string  `json:"policyId"`
	TenantID  string  `json:"tenantId"`
	SampleID  string  `json:"sampleId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// Predefined policy outcomes.
const (
	PolicyOutcomeAllow     = ".allow"
	PolicyOutcomeChallenge = ".challenge"
	PolicyOutcomeDeny      = ".deny"
	PolicyOutcomeError     = ".err"
)
