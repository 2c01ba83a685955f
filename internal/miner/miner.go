// Package miner converts sample batches into candidate rules by clustering on
// domain feature keys and applying frequency and confidence thresholds.
package miner

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fintuitive/fintuitive/internal/model"
)

// KeyFunc extracts the grouping key for a sample. Returning "" marks the
// sample ineligible for mining.
type KeyFunc func(sample model.Sample) string

// PayloadFunc builds the domain payload for a mined group.
type PayloadFunc func(key, label string, samples []model.Sample) model.RulePayload

// Config tunes the mining thresholds.
type Config struct {
	// MinGroupSize discards groups with fewer samples (typically 3-5).
	MinGroupSize int
	// MinConfidence discards candidates whose majority share falls below it.
	MinConfidence float64
	// RulePriority is assigned to every mined rule.
	RulePriority int
}

// Miner mines rules from bounded in-memory sample sets. It holds no state
// between runs; every call is a pure function of its inputs plus the clock.
type Miner struct {
	now func() time.Time
	cfg Config
}

// New creates a miner with the given thresholds.
func New(cfg Config) *Miner {
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = 3
	}
	return &Miner{cfg: cfg, now: time.Now}
}

// WithClock overrides the miner's clock for tests.
func (m *Miner) WithClock(now func() time.Time) *Miner {
	m.now = now
	return m
}

type group struct {
	firstSeen time.Time
	key       string
	samples   []model.Sample
}

// Mine clusters samples by key, computes the majority label per surviving
// group, and emits a candidate rule wherever the majority share clears the
// confidence threshold. Label ties go to the label observed earliest.
func (m *Miner) Mine(moduleID string, samples []model.Sample, keyFn KeyFunc, payloadFn PayloadFunc) []model.Rule {
	groups := m.cluster(samples, keyFn)

	var rules []model.Rule
	for _, g := range groups {
		if len(g.samples) < m.cfg.MinGroupSize {
			continue
		}

		label, majority := majorityLabel(g.samples)
		if label == "" {
			continue
		}

		confidence := float64(majority) / float64(len(g.samples))
		if confidence < m.cfg.MinConfidence {
			continue
		}

		rules = append(rules, model.Rule{
			ID:          uuid.NewString(),
			ModuleID:    moduleID,
			Key:         g.key,
			Source:      model.RuleSourceUserLearned,
			Payload:     payloadFn(g.key, label, g.samples),
			Confidence:  confidence,
			Priority:    m.cfg.RulePriority,
			SampleCount: len(g.samples),
			CreatedAt:   m.now(),
		})
	}
	return rules
}

// MineNumeric clusters samples by key and derives a mean + k·σ threshold rule
// per surviving group from the named numeric feature. Confidence scales with
// group size as n/(n+3), so small groups stay below typical cutoffs.
func (m *Miner) MineNumeric(moduleID string, samples []model.Sample, keyFn KeyFunc, feature string, k float64, answer string) []model.Rule {
	groups := m.cluster(samples, keyFn)

	var rules []model.Rule
	for _, g := range groups {
		values := make([]float64, 0, len(g.samples))
		for _, sample := range g.samples {
			if v, ok := sample.Features.Number(feature); ok {
				values = append(values, v)
			}
		}
		if len(values) < m.cfg.MinGroupSize {
			continue
		}

		mean, stdDev := meanStdDev(values)
		confidence := float64(len(values)) / float64(len(values)+3)
		if confidence < m.cfg.MinConfidence {
			continue
		}

		rules = append(rules, model.Rule{
			ID:       uuid.NewString(),
			ModuleID: moduleID,
			Key:      g.key,
			Source:   model.RuleSourceUserLearned,
			Payload: model.ThresholdPayload{
				GroupKey: g.key,
				Answer:   answer,
				Mean:     mean,
				StdDev:   stdDev,
				K:        k,
			},
			Confidence:  confidence,
			Priority:    m.cfg.RulePriority,
			SampleCount: len(values),
			CreatedAt:   m.now(),
		})
	}
	return rules
}

// cluster groups eligible samples by key, ordered by first appearance so rule
// emission is deterministic.
func (m *Miner) cluster(samples []model.Sample, keyFn KeyFunc) []group {
	byKey := make(map[string]*group)
	var order []string

	for _, sample := range samples {
		key := keyFn(sample)
		if key == "" {
			continue
		}
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, firstSeen: sample.Timestamp}
			byKey[key] = g
			order = append(order, key)
		}
		if sample.Timestamp.Before(g.firstSeen) {
			g.firstSeen = sample.Timestamp
		}
		g.samples = append(g.samples, sample)
	}

	out := make([]group, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// majorityLabel returns the most common non-empty label and its count. Ties go
// to the label whose first sample is oldest.
func majorityLabel(samples []model.Sample) (string, int) {
	counts := make(map[string]int)
	firstSeen := make(map[string]time.Time)

	for _, sample := range samples {
		if sample.Label == "" {
			continue
		}
		counts[sample.Label]++
		if t, ok := firstSeen[sample.Label]; !ok || sample.Timestamp.Before(t) {
			firstSeen[sample.Label] = sample.Timestamp
		}
	}
	if len(counts) == 0 {
		return "", 0
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if counts[labels[i]] != counts[labels[j]] {
			return counts[labels[i]] > counts[labels[j]]
		}
		return firstSeen[labels[i]].Before(firstSeen[labels[j]])
	})

	return labels[0], counts[labels[0]]
}

func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return mean, math.Sqrt(variance)
}
