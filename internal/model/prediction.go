package model

import "time"

// PredictionSource indicates which cascade stage produced a prediction.
type PredictionSource string

// Prediction source constants, in cascade order.
const (
	PredictionFromLearnedRule   PredictionSource = "learned_rule"
	PredictionFromProfile       PredictionSource = "profile_inference"
	PredictionFromCollaborative PredictionSource = "collaborative_rule"
	PredictionFromFallback      PredictionSource = "fallback"
)

// Prediction is the result of a predict call. Every call produces one; when no
// stage qualifies, Matched is false and the module's fallback answer is
// returned with low confidence.
type Prediction struct {
	Result     string           `json:"result"`
	Source     PredictionSource `json:"source"`
	RuleID     string           `json:"rule_id,omitempty"`
	Confidence float64          `json:"confidence"`
	Matched    bool             `json:"matched"`
}

// TrainingResult reports the outcome of one training run. Failures are carried
// in Error rather than returned as a Go error so a bad train never crashes the
// host feature.
type TrainingResult struct {
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	SamplesUsed    int           `json:"samples_used"`
	RulesGenerated int           `json:"rules_generated"`
	Success        bool          `json:"success"`
}

// ModuleMetrics summarizes a module's health over its recent feedback window.
type ModuleMetrics struct {
	ModuleID      string  `json:"module_id"`
	Stage         Stage   `json:"stage"`
	Accuracy      float64 `json:"accuracy"`
	Precision     float64 `json:"precision"`
	Recall        float64 `json:"recall"`
	RuleCount     int     `json:"rule_count"`
	SampleCount   int     `json:"sample_count"`
	FeedbackCount int     `json:"feedback_count"`
}

// PredictionInput is the query shape fed to the cascade. Features uses the
// same tagged union as samples so domain extractors apply to both.
type PredictionInput struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	Features  Features  `json:"features"`
}
