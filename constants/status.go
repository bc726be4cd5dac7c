package constants

// Outcome is the terminal state of one coverage-closure run.
type Outcome string

// Stable values (written to logs and the report).
const (
	OutcomeConverged Outcome = "CONVERGED" // every active unit is mapped
	OutcomeStalled   Outcome = "STALLED"   // a mapping round produced no assignments
	OutcomeExhausted Outcome = "EXHAUSTED" // iteration ceiling or per-unit budgets spent
)

// Phase names the closure loop's non-terminal states.
type Phase string

const (
	PhaseScanning Phase = "SCANNING"
	PhaseMapping  Phase = "MAPPING"
	PhaseMerging  Phase = "MERGING"
)

// Stage labels oracle calls so logs and metrics can tell them apart.
type Stage string

const (
	StageFramework   Stage = "framework"
	StageRelevance   Stage = "relevance"
	StageUnmapped    Stage = "unmapped"
	StageNonCore     Stage = "non_core"
	StageComparative Stage = "comparative"
)
