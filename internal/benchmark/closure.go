package benchmark

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

// Checkpointer persists the registry and the mapping. SaveFramework is always
// called before SaveMapping when dimensions were minted.
type Checkpointer interface {
	SaveFramework(ctx context.Context, fw *entity.Framework) error
	SaveMapping(ctx context.Context, fw *entity.Framework, m *entity.Mapping) error
}

// IterationStats describes one Scanning -> Mapping -> Merging round.
type IterationStats struct {
	Iteration int
	Unmapped  int
	Attempted int
	Failed    int
	Merge     MergeReport
	Elapsed   time.Duration
}

// Result is the terminal report of a closure run.
type Result struct {
	Outcome    constants.Outcome
	Iterations int
	Assigned   int
	Created    []string
	Rekeyed    []Rekey
	// Abandoned units spent their attempt budget without being mapped.
	Abandoned []entity.UnitRef
	// Unconverged lists every unit still unmapped at termination.
	Unconverged []entity.UnitRef
}

// ClosureLoop drives the unmapped set to empty, minting dimensions as needed.
type ClosureLoop struct {
	oracle      llm.Oracle
	pool        *async.Pool
	logger      *slog.Logger
	model       string
	maxIter     int
	maxAttempts int
	checkpoint  Checkpointer
	observe     func(IterationStats)
}

type ClosureOption func(*ClosureLoop)

func WithModel(model string) ClosureOption {
	return func(l *ClosureLoop) { l.model = model }
}

// WithMaxIterations caps Mapping rounds; n <= 0 derives the cap from the unit count.
func WithMaxIterations(n int) ClosureOption {
	return func(l *ClosureLoop) { l.maxIter = n }
}

// WithMaxAttemptsPerUnit caps how many rounds a single unit is offered to the oracle;
// n <= 0 means no cap.
func WithMaxAttemptsPerUnit(n int) ClosureOption {
	return func(l *ClosureLoop) { l.maxAttempts = n }
}

func WithCheckpointer(c Checkpointer) ClosureOption {
	return func(l *ClosureLoop) { l.checkpoint = c }
}

// WithObserver receives stats after every Merging phase.
func WithObserver(fn func(IterationStats)) ClosureOption {
	return func(l *ClosureLoop) { l.observe = fn }
}

func NewClosureLoop(oracle llm.Oracle, pool *async.Pool, logger *slog.Logger, opts ...ClosureOption) *ClosureLoop {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = async.NewPool(async.WithLogger(logger))
	}
	l := &ClosureLoop{
		oracle:      oracle,
		pool:        pool,
		logger:      logger,
		maxAttempts: 3,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run iterates until every unit is mapped (Converged), a round yields no
// assignments (Stalled), or the iteration cap or every remaining unit's attempt
// budget is spent (Exhausted). state is updated in place. Errors are returned
// only for cancellation and checkpoint failures; the partial result is still valid.
func (l *ClosureLoop) Run(ctx context.Context, state *entity.State, docs []entity.SourceDocument) (Result, error) {
	log := common.LoggerFrom(ctx, l.logger)
	tags := entity.Tags(docs)
	units := indexUnits(docs)

	maxIter := l.maxIter
	if maxIter <= 0 {
		// each productive round maps at least one unit
		maxIter = len(units) + 1
	}
	attempts := make(map[entity.UnitRef]int)
	var res Result

	for {
		// Scanning
		unmapped := state.Unmapped(docs)
		if len(unmapped) == 0 {
			res.Outcome = constants.OutcomeConverged
			break
		}
		if res.Iterations >= maxIter {
			log.Warn("benchmark.closure.iteration_cap", "iterations", res.Iterations, "unmapped", len(unmapped))
			res.Outcome = constants.OutcomeExhausted
			res.finish(unmapped, attempts, l.maxAttempts)
			break
		}
		candidates := l.eligible(unmapped, attempts)
		if len(candidates) == 0 {
			log.Warn("benchmark.closure.attempts_exhausted", "unmapped", len(unmapped))
			res.Outcome = constants.OutcomeExhausted
			res.finish(unmapped, attempts, l.maxAttempts)
			break
		}
		res.Iterations++
		start := time.Now()
		log.Info("benchmark.closure.iteration",
			"iteration", res.Iterations,
			"phase", constants.PhaseMapping,
			"unmapped", len(unmapped),
			"attempting", len(candidates),
			"dimensions", state.Framework.Len(),
		)

		// Mapping: workers see a snapshot of the registry as it stands now
		snapshot := state.Framework.Clone()
		batch, failed := l.mapPhase(ctx, log, snapshot, candidates, units)
		for _, ref := range candidates {
			attempts[ref]++
		}
		if err := ctx.Err(); err != nil {
			res.finish(state.Unmapped(docs), attempts, l.maxAttempts)
			return res, err
		}

		// Merging
		merge := MergeAssignments(state, batch, tags)
		res.Assigned += merge.Assigned
		res.Created = append(res.Created, merge.Created...)
		res.Rekeyed = append(res.Rekeyed, merge.Rekeyed...)
		for _, rk := range merge.Rekeyed {
			log.Warn("benchmark.closure.key_collision", "unit", rk.Unit.String(), "proposed", rk.From, "stored_as", rk.To)
		}
		if err := l.persist(ctx, state, merge); err != nil {
			res.finish(state.Unmapped(docs), attempts, l.maxAttempts)
			return res, err
		}

		stats := IterationStats{
			Iteration: res.Iterations,
			Unmapped:  len(unmapped),
			Attempted: len(candidates),
			Failed:    failed,
			Merge:     merge,
			Elapsed:   time.Since(start),
		}
		if l.observe != nil {
			l.observe(stats)
		}
		log.Info("benchmark.closure.merged",
			"iteration", res.Iterations,
			"phase", constants.PhaseMerging,
			"assigned", merge.Assigned,
			"created", merge.Created,
			"updated", merge.Updated,
			"failed", failed,
			"elapsed_ms", stats.Elapsed.Milliseconds(),
		)

		if merge.Assigned == 0 {
			left := state.Unmapped(docs)
			log.Warn("benchmark.closure.stalled", "iteration", res.Iterations, "unmapped", len(left))
			res.Outcome = constants.OutcomeStalled
			res.finish(left, attempts, l.maxAttempts)
			break
		}
	}

	log.Info("benchmark.closure.done",
		"outcome", res.Outcome,
		"iterations", res.Iterations,
		"assigned", res.Assigned,
		"created", len(res.Created),
		"unconverged", len(res.Unconverged),
		"abandoned", len(res.Abandoned),
	)
	return res, nil
}

func (l *ClosureLoop) eligible(unmapped []entity.UnitRef, attempts map[entity.UnitRef]int) []entity.UnitRef {
	if l.maxAttempts <= 0 {
		return unmapped
	}
	out := make([]entity.UnitRef, 0, len(unmapped))
	for _, ref := range unmapped {
		if attempts[ref] < l.maxAttempts {
			out = append(out, ref)
		}
	}
	return out
}

// mapPhase asks about every candidate concurrently. The batch keeps candidate order.
func (l *ClosureLoop) mapPhase(ctx context.Context, log *slog.Logger, fw *entity.Framework, candidates []entity.UnitRef, units map[entity.UnitRef]entity.LogicalUnit) ([]UnitAssignments, int) {
	slots := make([]UnitAssignments, len(candidates))
	ok := make([]bool, len(candidates))
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	nextKey := fw.NextKey()

	// failures are counted from ok below; Each's joined error adds nothing
	_ = async.Each(ctx, l.pool, idx, func(ctx context.Context, i int) error {
		ref := candidates[i]
		raw, err := l.oracle.Ask(ctx, llm.Request{
			Prompt:   llm.BuildUnmappedPrompt(fw, ref.Tag, units[ref], nextKey),
			Model:    l.model,
			JSONMode: true,
			Purpose:  constants.StageUnmapped,
		})
		if err != nil {
			log.Warn("benchmark.closure.unit_oracle_error", "unit", ref.String(), "error", err)
			return err
		}
		as, err := llm.DecodeAssignments(raw)
		if err != nil {
			log.Warn("benchmark.closure.unit_unparseable", "unit", ref.String(), "error", err)
			return err
		}
		slots[i] = UnitAssignments{Unit: ref, Assignments: as}
		ok[i] = true
		return nil
	})

	batch := make([]UnitAssignments, 0, len(candidates))
	failed := 0
	for i := range slots {
		if !ok[i] {
			failed++
			continue
		}
		batch = append(batch, slots[i])
	}
	return batch, failed
}

func (l *ClosureLoop) persist(ctx context.Context, state *entity.State, merge MergeReport) error {
	if l.checkpoint == nil || merge.Assigned == 0 {
		return nil
	}
	if len(merge.Created) > 0 || len(merge.Updated) > 0 {
		if err := l.checkpoint.SaveFramework(ctx, state.Framework); err != nil {
			return fmt.Errorf("checkpoint framework: %w", err)
		}
	}
	if err := l.checkpoint.SaveMapping(ctx, state.Framework, state.Mapping); err != nil {
		return fmt.Errorf("checkpoint mapping: %w", err)
	}
	return nil
}

func (r *Result) finish(unmapped []entity.UnitRef, attempts map[entity.UnitRef]int, maxAttempts int) {
	r.Unconverged = append([]entity.UnitRef(nil), unmapped...)
	r.Abandoned = nil
	if maxAttempts <= 0 {
		return
	}
	for _, ref := range unmapped {
		if attempts[ref] >= maxAttempts {
			r.Abandoned = append(r.Abandoned, ref)
		}
	}
}

func indexUnits(docs []entity.SourceDocument) map[entity.UnitRef]entity.LogicalUnit {
	out := make(map[entity.UnitRef]entity.LogicalUnit)
	for i := range docs {
		for _, u := range docs[i].Units {
			out[entity.UnitRef{Tag: docs[i].Tag, ID: u.ID}] = u
		}
	}
	return out
}
