// Package learning implements the generic learning-module lifecycle shared by
// every personalization domain: sample collection under resource governance,
// periodic rule mining, the prediction cascade, feedback-driven confidence
// decay, and model export/import.
package learning

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fintuitive/fintuitive/internal/cascade"
	"github.com/fintuitive/fintuitive/internal/common"
	"github.com/fintuitive/fintuitive/internal/config"
	"github.com/fintuitive/fintuitive/internal/domains"
	"github.com/fintuitive/fintuitive/internal/governor"
	"github.com/fintuitive/fintuitive/internal/miner"
	"github.com/fintuitive/fintuitive/internal/model"
	"github.com/fintuitive/fintuitive/internal/profile"
	"github.com/fintuitive/fintuitive/internal/sanitize"
	"github.com/fintuitive/fintuitive/internal/service"
)

// InsightProvider serves community statistics to the cascade's collaborative
// stage. Lookups are best-effort: a failure skips the stage, never blocks
// prediction.
type InsightProvider interface {
	GetInsight(ctx context.Context, moduleID string) (*model.GlobalInsight, error)
}

// Deps carries the injected collaborators of a module. Queue and Insights may
// be nil for hosts running without the collaborative layer.
type Deps struct {
	Store     service.Store
	Governor  *governor.Governor
	Profiles  *profile.Cache
	Sanitizer *sanitize.Sanitizer
	Queue     *governor.ReportQueue
	Insights  InsightProvider
	Clock     service.Clock
}

// feedbackRecord is one entry in the rolling metrics window.
type feedbackRecord struct {
	predicted string
	actual    string
	positive  bool
}

// Module owns one user's learning state for one domain: its sample stream,
// rule set, and lifecycle stage. All cross-module communication happens
// through explicit calls; modules share no mutable state.
type Module struct {
	deps       Deps
	descriptor domains.Descriptor
	miner      *miner.Miner
	cascade    *cascade.Cascade
	params     config.Params
	userID     string

	mu            sync.Mutex
	stage         model.Stage
	trainInFlight bool
	lastTrainedAt time.Time
	feedback      []feedbackRecord
}

// NewModule creates a module for one user and domain descriptor.
func NewModule(userID string, descriptor domains.Descriptor, params config.Params, deps Deps) *Module {
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}

	infer := descriptor.Infer
	if descriptor.ModuleID == domains.ModuleAnomaly {
		infer = domains.AnomalyInference(params.ZThreshold)
	}

	return &Module{
		deps:       deps,
		descriptor: descriptor,
		miner: miner.New(miner.Config{
			MinGroupSize:  descriptor.MinGroupSize,
			MinConfidence: params.MinConfidence,
			RulePriority:  descriptor.RulePriority,
		}),
		cascade: cascade.New(cascade.Config{
			Infer:              infer,
			InsightKey:         descriptor.InsightKey,
			FallbackResult:     descriptor.FallbackResult,
			FallbackConfidence: 0.5,
			CollabDiscount:     params.CollabDiscount,
			MinInsightShare:    params.MinConfidence,
		}),
		params: params,
		userID: userID,
		stage:  model.StageColdStart,
	}
}

// ID returns the module's domain identifier.
func (m *Module) ID() string { return m.descriptor.ModuleID }

// UserID returns the owning user.
func (m *Module) UserID() string { return m.userID }

// Stage returns the current lifecycle stage.
func (m *Module) Stage() model.Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

// CollectSample appends a sample, subject to resource-governor admission, and
// re-evaluates the lifecycle stage. When the module is at capacity it
// triggers cleanup and retries once; a second denial is an admission error
// and the sample is dropped.
func (m *Module) CollectSample(ctx context.Context, sample *model.Sample) error {
	if sample == nil {
		return fmt.Errorf("%w: sample is nil", common.ErrInvalidInput)
	}
	if sample.ModuleID == "" {
		sample.ModuleID = m.descriptor.ModuleID
	}
	if sample.ModuleID != m.descriptor.ModuleID {
		return fmt.Errorf("%w: sample module %q does not match %q",
			common.ErrInvalidInput, sample.ModuleID, m.descriptor.ModuleID)
	}
	if sample.UserID != m.userID {
		return fmt.Errorf("%w: sample user %q does not match module owner %q",
			common.ErrInvalidInput, sample.UserID, m.userID)
	}
	if err := sample.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	ok, err := m.deps.Governor.CanAddSample(ctx, m.descriptor.ModuleID)
	if err != nil {
		return err
	}
	if !ok {
		if _, cleanupErr := m.deps.Governor.Cleanup(ctx, m.descriptor.ModuleID); cleanupErr != nil {
			common.LogError(cleanupErr, "cleanup after capacity denial failed",
				common.Fields{"module": m.descriptor.ModuleID})
		}
		ok, err = m.deps.Governor.CanAddSample(ctx, m.descriptor.ModuleID)
		if err != nil {
			return err
		}
		if !ok {
			slog.Warn("Sample dropped, module at capacity",
				"module", m.descriptor.ModuleID, "user", m.userID)
			return common.ErrCapacityExceeded
		}
	}

	if err := m.deps.Store.SaveSample(ctx, sample); err != nil {
		return fmt.Errorf("failed to collect sample: %w", err)
	}

	m.deps.Profiles.Invalidate(m.userID)
	m.queueForReporting(sample)

	if err := m.evaluateStage(ctx); err != nil {
		common.LogError(err, "stage evaluation failed",
			common.Fields{"module": m.descriptor.ModuleID})
	}
	return nil
}

// queueForReporting sanitizes and enqueues a qualifying sample for the
// collaborative layer. Reporting is best-effort and suppressed under low
// power.
func (m *Module) queueForReporting(sample *model.Sample) {
	if m.deps.Queue == nil || m.deps.Sanitizer == nil {
		return
	}
	if sample.Source != model.SourceExplicitFeedback {
		return
	}
	if !m.deps.Governor.ShouldReport() {
		return
	}

	domainKey := m.descriptor.KeyFn(*sample)
	if domainKey == "" {
		return
	}
	pattern, ok := m.deps.Sanitizer.SanitizeSample(sample, domainKey, sample.QualityScore)
	if !ok {
		return
	}
	m.deps.Queue.Enqueue(pattern)
}

// evaluateStage advances cold_start→collecting→active as the owning user's
// sample count crosses the domain thresholds. Transitions are monotonic.
func (m *Module) evaluateStage(ctx context.Context) error {
	m.mu.Lock()
	stage := m.stage
	m.mu.Unlock()

	if stage != model.StageColdStart && stage != model.StageCollecting {
		return nil
	}

	count, err := m.deps.Store.CountSamples(ctx, m.descriptor.ModuleID, m.userID)
	if err != nil {
		return err
	}
	ruleCount, err := m.deps.Store.CountRules(ctx, m.descriptor.ModuleID, m.userID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stage == model.StageColdStart && count >= m.descriptor.MinSamples {
		m.stage = model.StageCollecting
		slog.Debug("Module advanced to collecting",
			"module", m.descriptor.ModuleID, "samples", count)
	}
	// Activation additionally requires at least one rule.
	if m.stage == model.StageCollecting && count >= 2*m.descriptor.MinSamples && ruleCount > 0 {
		m.stage = model.StageActive
		slog.Debug("Module advanced to active",
			"module", m.descriptor.ModuleID, "samples", count, "rules", ruleCount)
	}
	return nil
}

// Train runs the rule miner over samples newer than the last training run
// (or all samples when incremental is false) and upserts the candidates.
// Failures never propagate: the module transitions to degraded and the error
// is reported in the result. Degraded modules skip training until
// RetryTraining is called.
func (m *Module) Train(ctx context.Context, incremental bool) model.TrainingResult {
	if !m.deps.Governor.ShouldPerformLearning() {
		return model.TrainingResult{Error: "training deferred by resource governor"}
	}

	m.mu.Lock()
	if m.trainInFlight {
		m.mu.Unlock()
		return model.TrainingResult{Error: common.ErrTrainingInFlight.Error()}
	}
	if m.stage == model.StageDegraded {
		m.mu.Unlock()
		return model.TrainingResult{Error: common.ErrModuleDegraded.Error()}
	}
	m.trainInFlight = true
	prevStage := m.stage
	if m.stage == model.StageActive {
		m.stage = model.StageTraining
	}
	since := m.lastTrainedAt
	m.mu.Unlock()

	result := m.train(ctx, incremental, since)

	m.mu.Lock()
	m.trainInFlight = false
	switch {
	case result.Success:
		m.lastTrainedAt = m.deps.Clock.Now()
		if m.stage == model.StageTraining || prevStage == model.StageDegraded {
			m.stage = model.StageActive
		}
	default:
		if result.Error != "" && prevStage != model.StageColdStart {
			m.stage = model.StageDegraded
		}
	}
	m.mu.Unlock()

	if result.Success {
		// A first successful train may satisfy the activation rule count.
		if err := m.evaluateStage(ctx); err != nil {
			common.LogError(err, "stage evaluation after training failed",
				common.Fields{"module": m.descriptor.ModuleID})
		}
	}
	return result
}

// RetryTraining re-runs training for a degraded module. On success the module
// returns to active with its new rule set; on failure it stays degraded.
func (m *Module) RetryTraining(ctx context.Context, incremental bool) model.TrainingResult {
	if !m.deps.Governor.ShouldPerformLearning() {
		return model.TrainingResult{Error: "training deferred by resource governor"}
	}

	m.mu.Lock()
	if m.stage == model.StageDegraded {
		m.stage = model.StageTraining
	}
	m.mu.Unlock()

	res := m.Train(ctx, incremental)

	m.mu.Lock()
	if !res.Success && m.stage == model.StageTraining {
		m.stage = model.StageDegraded
	}
	m.mu.Unlock()
	return res
}

func (m *Module) train(ctx context.Context, incremental bool, since time.Time) model.TrainingResult {
	start := m.deps.Clock.Now()
	fail := func(err error) model.TrainingResult {
		common.LogError(err, "training failed", common.Fields{
			"module": m.descriptor.ModuleID,
			"user":   m.userID,
		})
		return model.TrainingResult{
			Duration: m.deps.Clock.Now().Sub(start),
			Error:    err.Error(),
		}
	}

	all, err := m.deps.Store.GetUserSamples(ctx, m.descriptor.ModuleID, m.userID, 0)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", common.ErrTrainingFailed, err))
	}
	samples := all
	if incremental && !since.IsZero() {
		samples = nil
		for _, s := range all {
			if s.Timestamp.After(since) {
				samples = append(samples, s)
			}
		}
	}

	var candidates []model.Rule
	if m.descriptor.Numeric {
		candidates = m.miner.MineNumeric(m.descriptor.ModuleID, samples,
			m.descriptor.KeyFn, m.descriptor.NumericFeature, m.descriptor.NumericK, m.descriptor.NumericAnswer)
	} else {
		candidates = m.miner.Mine(m.descriptor.ModuleID, samples,
			m.descriptor.KeyFn, m.descriptor.PayloadFn)
	}
	for i := range candidates {
		candidates[i].UserID = m.userID
	}

	ruleCount, err := m.deps.Store.CountRules(ctx, m.descriptor.ModuleID, m.userID)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", common.ErrTrainingFailed, err))
	}

	written := 0
	for i := range candidates {
		if !m.deps.Governor.CanAddRule(ruleCount) {
			slog.Warn("Rule cap reached, discarding remaining candidates",
				"module", m.descriptor.ModuleID, "discarded", len(candidates)-i)
			break
		}
		wrote, err := m.deps.Store.UpsertRule(ctx, &candidates[i])
		if err != nil {
			return fail(fmt.Errorf("%w: %v", common.ErrTrainingFailed, err))
		}
		if wrote {
			written++
			ruleCount++
		}
	}

	m.deps.Profiles.Rebuild(m.userID, all)
	m.queueRulesForReporting(candidates)

	return model.TrainingResult{
		Duration:       m.deps.Clock.Now().Sub(start),
		SamplesUsed:    len(samples),
		RulesGenerated: written,
		Success:        true,
	}
}

// queueRulesForReporting publishes freshly mined high-confidence rules.
func (m *Module) queueRulesForReporting(rules []model.Rule) {
	if m.deps.Queue == nil || m.deps.Sanitizer == nil || !m.deps.Governor.ShouldReport() {
		return
	}
	for i := range rules {
		if pattern, ok := m.deps.Sanitizer.SanitizeRule(&rules[i], m.userID); ok {
			m.deps.Queue.Enqueue(pattern)
		}
	}
}

// Predict runs the prediction cascade. It never fails outright: internal
// errors are logged and degrade the answer toward the fallback stage.
func (m *Module) Predict(ctx context.Context, input model.PredictionInput) model.Prediction {
	if input.UserID == "" {
		input.UserID = m.userID
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = m.deps.Clock.Now()
	}

	rules, err := m.deps.Store.GetRules(ctx, m.descriptor.ModuleID, m.userID)
	if err != nil {
		common.LogError(err, "rule fetch failed, serving fallback",
			common.Fields{"module": m.descriptor.ModuleID})
		rules = nil
	}

	prof := m.deps.Profiles.Get(m.userID)
	if prof == nil {
		if samples, err := m.deps.Store.GetUserSamples(ctx, m.descriptor.ModuleID, m.userID, 0); err == nil {
			prof = m.deps.Profiles.Rebuild(m.userID, samples)
		}
	}

	var insight *model.GlobalInsight
	if m.deps.Insights != nil {
		if got, err := m.deps.Insights.GetInsight(ctx, m.descriptor.ModuleID); err == nil {
			insight = got
		}
	}

	prediction, matched := m.cascade.Predict(input, rules, prof, insight)
	if matched != nil {
		matched.HitCount++
		now := m.deps.Clock.Now()
		matched.LastUsedAt = &now
		if err := m.deps.Store.SaveRule(ctx, matched); err != nil {
			common.LogError(err, "hit bookkeeping failed",
				common.Fields{"module": m.descriptor.ModuleID, "rule": matched.ID})
		}
	}
	return prediction
}

// Feedback persists the corrected label and adjusts rule confidence for every
// rule sharing the sample's target key: multiplicative decay on negative
// feedback, a small clamped boost on positive.
func (m *Module) Feedback(ctx context.Context, sample *model.Sample, positive bool) error {
	if sample == nil {
		return fmt.Errorf("%w: sample is nil", common.ErrInvalidInput)
	}
	sample.Source = model.SourceExplicitFeedback
	if err := m.CollectSample(ctx, sample); err != nil {
		return err
	}

	targetKey := m.descriptor.KeyFn(*sample)
	predicted := ""
	if targetKey != "" {
		rules, err := m.deps.Store.GetRules(ctx, m.descriptor.ModuleID, m.userID)
		if err != nil {
			return fmt.Errorf("failed to load rules for feedback: %w", err)
		}
		for i := range rules {
			rule := &rules[i]
			if rule.Key != targetKey {
				continue
			}
			if predicted == "" {
				predicted = rule.Payload.Result()
			}
			if positive {
				rule.Confidence *= m.params.BoostFactor
				if rule.Confidence > 1 {
					rule.Confidence = 1
				}
			} else {
				rule.Confidence *= m.params.DecayFactor
				rule.FalsePositives++
			}
			if err := m.deps.Store.SaveRule(ctx, rule); err != nil {
				return fmt.Errorf("failed to adjust rule confidence: %w", err)
			}
		}
	}

	m.mu.Lock()
	m.feedback = append(m.feedback, feedbackRecord{
		predicted: predicted,
		actual:    sample.Label,
		positive:  positive,
	})
	if len(m.feedback) > m.params.FeedbackWindow {
		m.feedback = m.feedback[len(m.feedback)-m.params.FeedbackWindow:]
	}
	m.mu.Unlock()
	return nil
}

// GetMetrics reports rule/sample counts and rolling-window quality measures.
func (m *Module) GetMetrics(ctx context.Context) model.ModuleMetrics {
	metrics := model.ModuleMetrics{
		ModuleID: m.descriptor.ModuleID,
		Stage:    m.Stage(),
	}

	if count, err := m.deps.Store.CountSamples(ctx, m.descriptor.ModuleID, m.userID); err == nil {
		metrics.SampleCount = count
	}
	if count, err := m.deps.Store.CountRules(ctx, m.descriptor.ModuleID, m.userID); err == nil {
		metrics.RuleCount = count
	}

	m.mu.Lock()
	window := append([]feedbackRecord(nil), m.feedback...)
	m.mu.Unlock()

	metrics.FeedbackCount = len(window)
	if len(window) == 0 {
		return metrics
	}

	correct := 0
	for _, rec := range window {
		if rec.positive {
			correct++
		}
	}
	metrics.Accuracy = float64(correct) / float64(len(window))
	metrics.Precision, metrics.Recall = precisionRecall(window)
	return metrics
}

// precisionRecall macro-averages per-label precision and recall over the
// feedback window. A record's predicted label comes from the rule that owned
// its key at feedback time.
func precisionRecall(window []feedbackRecord) (float64, float64) {
	type counts struct{ tp, fp, fn int }
	byLabel := make(map[string]*counts)
	get := func(label string) *counts {
		if label == "" {
			return nil
		}
		c, ok := byLabel[label]
		if !ok {
			c = &counts{}
			byLabel[label] = c
		}
		return c
	}

	for _, rec := range window {
		if rec.positive {
			if c := get(rec.actual); c != nil {
				c.tp++
			}
			continue
		}
		if c := get(rec.predicted); c != nil {
			c.fp++
		}
		if c := get(rec.actual); c != nil {
			c.fn++
		}
	}

	var precisionSum, recallSum float64
	labels := 0
	for _, c := range byLabel {
		labels++
		if c.tp+c.fp > 0 {
			precisionSum += float64(c.tp) / float64(c.tp+c.fp)
		}
		if c.tp+c.fn > 0 {
			recallSum += float64(c.tp) / float64(c.tp+c.fn)
		}
	}
	if labels == 0 {
		return 0, 0
	}
	return precisionSum / float64(labels), recallSum / float64(labels)
}

// ExportModel produces a serializable rule snapshot for backup or cold-start
// transfer.
func (m *Module) ExportModel(ctx context.Context) (*model.ModelExport, error) {
	rules, err := m.deps.Store.GetRules(ctx, m.descriptor.ModuleID, m.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to export rules: %w", err)
	}
	// Snapshots carry only the hashed user in metadata; imports stamp the
	// receiving user's ID back on.
	for i := range rules {
		rules[i].UserID = ""
	}

	return &model.ModelExport{
		ExportedAt: m.deps.Clock.Now(),
		ModuleID:   m.descriptor.ModuleID,
		Version:    model.ExportVersion,
		Rules:      rules,
		Metadata: map[string]string{
			"stage": string(m.Stage()),
			"user":  sanitize.HashUser(m.userID),
		},
	}, nil
}

// ImportModel merges a snapshot's rules into the module. Existing rules are
// only replaced by strictly higher confidence, so an import never clobbers
// better local learning. Returns how many rules were written.
func (m *Module) ImportModel(ctx context.Context, export *model.ModelExport) (int, error) {
	if export == nil {
		return 0, fmt.Errorf("%w: export is nil", common.ErrInvalidInput)
	}
	if err := export.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	if export.ModuleID != m.descriptor.ModuleID {
		return 0, fmt.Errorf("%w: export targets module %q, this is %q",
			common.ErrInvalidInput, export.ModuleID, m.descriptor.ModuleID)
	}

	imported := 0
	for i := range export.Rules {
		rule := export.Rules[i]
		rule.ModuleID = m.descriptor.ModuleID
		rule.UserID = m.userID
		wrote, err := m.deps.Store.UpsertRule(ctx, &rule)
		if err != nil {
			return imported, fmt.Errorf("failed to import rule %q: %w", rule.Key, err)
		}
		if wrote {
			imported++
		}
	}

	slog.Info("Imported model snapshot",
		"module", m.descriptor.ModuleID,
		"rules", imported,
		"version", export.Version)
	return imported, nil
}

// ClearData removes the owning user's samples (and rules unless keepRules),
// resets the lifecycle to cold start, and drops cached profiles. Other users
// sharing the store are untouched.
func (m *Module) ClearData(ctx context.Context, keepRules bool) error {
	if _, err := m.deps.Store.DeleteUserSamples(ctx, m.descriptor.ModuleID, m.userID); err != nil {
		return fmt.Errorf("failed to clear samples: %w", err)
	}
	if !keepRules {
		if _, err := m.deps.Store.DeleteRules(ctx, m.descriptor.ModuleID, m.userID); err != nil {
			return fmt.Errorf("failed to clear rules: %w", err)
		}
	}

	m.deps.Profiles.Invalidate(m.userID)

	m.mu.Lock()
	m.stage = model.StageColdStart
	m.lastTrainedAt = time.Time{}
	m.feedback = nil
	m.mu.Unlock()
	return nil
}
