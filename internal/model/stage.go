package model

// Stage is a learning module's lifecycle phase.
type Stage string

// Stage constants.
const (
	StageColdStart  Stage = "cold_start"
	StageCollecting Stage = "collecting"
	StageTraining   Stage = "training"
	StageActive     Stage = "active"
	StageDegraded   Stage = "degraded"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Progression is monotonic except for the training failure path
// (training→degraded) and its recovery (degraded→training→active).
func (s Stage) CanTransition(next Stage) bool {
	switch s {
	case StageColdStart:
		return next == StageCollecting
	case StageCollecting:
		return next == StageActive
	case StageActive:
		return next == StageTraining
	case StageTraining:
		return next == StageActive || next == StageDegraded
	case StageDegraded:
		return next == StageTraining
	}
	return false
}

// ServesPredictions reports whether modules in this stage answer predict calls
// from their own rule set. Degraded modules keep serving from the last-good
// rules; cold-start and collecting modules rely on imported defaults only.
func (s Stage) ServesPredictions() bool {
	return s == StageActive || s == StageTraining || s == StageDegraded
}
