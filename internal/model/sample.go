// Package model defines the core data structures for the fintuitive engine.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SampleSource indicates how a sample was produced.
type SampleSource string

// Sample source constants.
const (
	SourceExplicitFeedback SampleSource = "explicit_feedback"
	SourceImplicitBehavior SampleSource = "implicit_behavior"
)

// Sample is one observed user interaction used as learning input. Samples are
// immutable once created; a newer sample with the same NaturalKey supersedes
// the old one rather than mutating it in place.
type Sample struct {
	Timestamp    time.Time    `json:"timestamp"`
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	ModuleID     string       `json:"module_id"`
	NaturalKey   string       `json:"natural_key,omitempty"`
	Label        string       `json:"label"`
	Source       SampleSource `json:"source"`
	Features     Features     `json:"features"`
	QualityScore float64      `json:"quality_score"`
}

// Features maps feature names to typed values.
type Features map[string]FeatureValue

// FeatureKind discriminates the variants of FeatureValue.
type FeatureKind string

// Feature kind constants.
const (
	FeatureString   FeatureKind = "string"
	FeatureNumber   FeatureKind = "number"
	FeatureTime     FeatureKind = "time"
	FeatureKeywords FeatureKind = "keywords"
)

// FeatureValue is a tagged union over the scalar types a sample feature can
// carry. Exactly one of the value fields is meaningful, selected by Kind.
type FeatureValue struct {
	Time     time.Time   `json:"time,omitempty"`
	Kind     FeatureKind `json:"kind"`
	Str      string      `json:"str,omitempty"`
	Keywords []string    `json:"keywords,omitempty"`
	Num      float64     `json:"num,omitempty"`
}

// StringFeature creates a string-valued feature.
func StringFeature(s string) FeatureValue {
	return FeatureValue{Kind: FeatureString, Str: s}
}

// NumberFeature creates a numeric feature.
func NumberFeature(n float64) FeatureValue {
	return FeatureValue{Kind: FeatureNumber, Num: n}
}

// TimeFeature creates a timestamp feature.
func TimeFeature(t time.Time) FeatureValue {
	return FeatureValue{Kind: FeatureTime, Time: t}
}

// KeywordsFeature creates a keyword-set feature.
func KeywordsFeature(words ...string) FeatureValue {
	return FeatureValue{Kind: FeatureKeywords, Keywords: words}
}

// String returns the feature's string value, or "" if it is not a string feature.
func (f Features) String(name string) string {
	if v, ok := f[name]; ok && v.Kind == FeatureString {
		return v.Str
	}
	return ""
}

// Number returns the feature's numeric value and whether it was present.
func (f Features) Number(name string) (float64, bool) {
	if v, ok := f[name]; ok && v.Kind == FeatureNumber {
		return v.Num, true
	}
	return 0, false
}

// Time returns the feature's timestamp value and whether it was present.
func (f Features) Time(name string) (time.Time, bool) {
	if v, ok := f[name]; ok && v.Kind == FeatureTime {
		return v.Time, true
	}
	return time.Time{}, false
}

// KeywordList returns the feature's keyword set, or nil if absent.
func (f Features) KeywordList(name string) []string {
	if v, ok := f[name]; ok && v.Kind == FeatureKeywords {
		return v.Keywords
	}
	return nil
}

// Validate checks that the sample carries the minimum fields the engine requires.
func (s *Sample) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sample ID is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("sample user ID is required")
	}
	if s.ModuleID == "" {
		return fmt.Errorf("sample module ID is required")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("sample timestamp is required")
	}
	if s.QualityScore < 0 || s.QualityScore > 1 {
		return fmt.Errorf("sample quality score %f outside [0,1]", s.QualityScore)
	}
	switch s.Source {
	case SourceExplicitFeedback, SourceImplicitBehavior:
	default:
		return fmt.Errorf("unknown sample source %q", s.Source)
	}
	return nil
}

// EncodeFeatures serializes the feature map for storage.
func (s *Sample) EncodeFeatures() ([]byte, error) {
	data, err := json.Marshal(s.Features)
	if err != nil {
		return nil, fmt.Errorf("failed to encode features: %w", err)
	}
	return data, nil
}

// DecodeFeatures deserializes a stored feature map into the sample.
func (s *Sample) DecodeFeatures(data []byte) error {
	if len(data) == 0 {
		s.Features = Features{}
		return nil
	}
	if err := json.Unmarshal(data, &s.Features); err != nil {
		return fmt.Errorf("failed to decode features: %w", err)
	}
	return nil
}
