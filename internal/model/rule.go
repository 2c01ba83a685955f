package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RuleSource indicates where a rule came from.
type RuleSource string

// Rule source constants.
const (
	RuleSourceUserLearned   RuleSource = "user_learned"
	RuleSourceCollaborative RuleSource = "collaborative"
	RuleSourceSystemDefault RuleSource = "system_default"
)

// PayloadKind discriminates the domain-specific rule payload variants.
type PayloadKind string

// Payload kind constants.
const (
	PayloadCategory   PayloadKind = "category"
	PayloadThreshold  PayloadKind = "threshold"
	PayloadKeyword    PayloadKind = "keyword"
	PayloadTimeWindow PayloadKind = "time_window"
)

// RulePayload is the domain-specific half of a rule: the condition shape plus
// the answer it predicts. The generic Rule core carries confidence, priority,
// provenance and usage bookkeeping for every variant.
type RulePayload interface {
	Kind() PayloadKind
	// Result is the answer this payload predicts when its condition matches.
	Result() string
}

// CategoryPayload maps a merchant pattern to a category.
type CategoryPayload struct {
	Merchant string `json:"merchant"`
	Category string `json:"category"`
}

// Kind implements RulePayload.
func (p CategoryPayload) Kind() PayloadKind { return PayloadCategory }

// Result implements RulePayload.
func (p CategoryPayload) Result() string { return p.Category }

// ThresholdPayload flags values outside mean + k·σ for a group.
type ThresholdPayload struct {
	GroupKey string  `json:"group_key"`
	Answer   string  `json:"answer"`
	Mean     float64 `json:"mean"`
	StdDev   float64 `json:"std_dev"`
	K        float64 `json:"k"`
}

// Kind implements RulePayload.
func (p ThresholdPayload) Kind() PayloadKind { return PayloadThreshold }

// Result implements RulePayload.
func (p ThresholdPayload) Result() string { return p.Answer }

// Threshold returns the cutoff value above which the rule fires.
func (p ThresholdPayload) Threshold() float64 { return p.Mean + p.K*p.StdDev }

// KeywordPayload maps a keyword set to an answer (intent, search result, dialogue act).
type KeywordPayload struct {
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}

// Kind implements RulePayload.
func (p KeywordPayload) Kind() PayloadKind { return PayloadKeyword }

// Result implements RulePayload.
func (p KeywordPayload) Result() string { return p.Answer }

// TimeWindowPayload maps an hour/weekday window to an answer (habit slots, coaching nudges).
type TimeWindowPayload struct {
	Answer    string         `json:"answer"`
	Weekdays  []time.Weekday `json:"weekdays,omitempty"`
	StartHour int            `json:"start_hour"`
	EndHour   int            `json:"end_hour"`
}

// Kind implements RulePayload.
func (p TimeWindowPayload) Kind() PayloadKind { return PayloadTimeWindow }

// Result implements RulePayload.
func (p TimeWindowPayload) Result() string { return p.Answer }

// Contains reports whether the given hour and weekday fall inside the window.
func (p TimeWindowPayload) Contains(hour int, weekday time.Weekday) bool {
	inHours := false
	if p.StartHour <= p.EndHour {
		inHours = hour >= p.StartHour && hour <= p.EndHour
	} else {
		// Window wraps midnight.
		inHours = hour >= p.StartHour || hour <= p.EndHour
	}
	if !inHours {
		return false
	}
	if len(p.Weekdays) == 0 {
		return true
	}
	for _, d := range p.Weekdays {
		if d == weekday {
			return true
		}
	}
	return false
}

// Rule is a condition→prediction mapping with an associated confidence, mined
// from samples. Rules belong to one user and are deduplicated by Key within
// that user: a later candidate only replaces an existing rule when its
// confidence is strictly higher.
type Rule struct {
	CreatedAt      time.Time   `json:"created_at"`
	LastUsedAt     *time.Time  `json:"last_used_at,omitempty"`
	Payload        RulePayload `json:"-"`
	ID             string      `json:"id"`
	ModuleID       string      `json:"module_id"`
	UserID         string      `json:"user_id,omitempty"`
	Key            string      `json:"key"`
	Source         RuleSource  `json:"source"`
	Confidence     float64     `json:"confidence"`
	Priority       int         `json:"priority"`
	SampleCount    int         `json:"sample_count"`
	HitCount       int         `json:"hit_count"`
	FalsePositives int         `json:"false_positives"`
}

// payloadEnvelope is the wire form of a RulePayload with its kind discriminator.
type payloadEnvelope struct {
	Kind    PayloadKind     `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// ruleAlias avoids recursion in the custom JSON methods.
type ruleAlias Rule

type ruleJSON struct {
	ruleAlias
	PayloadEnvelope *payloadEnvelope `json:"payload,omitempty"`
}

// MarshalJSON encodes the rule with its payload under a kind discriminator.
func (r Rule) MarshalJSON() ([]byte, error) {
	out := ruleJSON{ruleAlias: ruleAlias(r)}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode rule payload: %w", err)
		}
		out.PayloadEnvelope = &payloadEnvelope{Kind: r.Payload.Kind(), Payload: raw}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the rule and reconstructs the typed payload variant.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var in ruleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Rule(in.ruleAlias)
	if in.PayloadEnvelope == nil {
		return nil
	}
	payload, err := DecodePayload(in.PayloadEnvelope.Kind, in.PayloadEnvelope.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// DecodePayload reconstructs a typed payload from its kind tag and raw JSON.
func DecodePayload(kind PayloadKind, raw []byte) (RulePayload, error) {
	switch kind {
	case PayloadCategory:
		var p CategoryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode category payload: %w", err)
		}
		return p, nil
	case PayloadThreshold:
		var p ThresholdPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode threshold payload: %w", err)
		}
		return p, nil
	case PayloadKeyword:
		var p KeywordPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode keyword payload: %w", err)
		}
		return p, nil
	case PayloadTimeWindow:
		var p TimeWindowPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to decode time window payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", kind)
	}
}

// Validate checks rule invariants before persistence.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule ID is required")
	}
	if r.ModuleID == "" {
		return fmt.Errorf("rule module ID is required")
	}
	if r.Key == "" {
		return fmt.Errorf("rule key is required")
	}
	if r.Payload == nil {
		return fmt.Errorf("rule payload is required")
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("rule confidence %f outside [0,1]", r.Confidence)
	}
	switch r.Source {
	case RuleSourceUserLearned, RuleSourceCollaborative, RuleSourceSystemDefault:
	default:
		return fmt.Errorf("unknown rule source %q", r.Source)
	}
	return nil
}
