package benchmark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

// Store is the persistence the definition stage needs.
type Store interface {
	Checkpointer
	SaveDocument(ctx context.Context, doc entity.SourceDocument) error
	LoadFramework(ctx context.Context) (*entity.Framework, error)
	LoadMapping(ctx context.Context) (*entity.Mapping, error)
	ResetMapping(ctx context.Context) error
}

// DefineOptions tunes one definition run.
type DefineOptions struct {
	// Resume reuses a stored framework and mapping and goes straight to the closure loop.
	Resume bool
}

// DefineResult is everything one definition run produced.
type DefineResult struct {
	Filter    FilterReport
	Resumed   bool
	Framework *entity.Framework
	Mapping   *entity.Mapping
	Documents []entity.SourceDocument // filtered
	Initial   MapReport
	Closure   Result
}

// Definer runs filter, framework, initial mapping and closure in order.
type Definer struct {
	store   Store
	builder *FrameworkBuilder
	mapper  *InitialMapper
	loop    *ClosureLoop
	logger  *slog.Logger
}

func NewDefiner(store Store, builder *FrameworkBuilder, mapper *InitialMapper, loop *ClosureLoop, logger *slog.Logger) *Definer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Definer{store: store, builder: builder, mapper: mapper, loop: loop, logger: logger}
}

// Define builds the dimension registry and mapping for docs and persists both.
// Stage-fatal errors (no documents, unusable framework, storage) are returned;
// an unconverged closure is reported in the result, not as an error.
func (d *Definer) Define(ctx context.Context, docs []entity.SourceDocument, opts DefineOptions) (DefineResult, error) {
	log := common.LoggerFrom(ctx, d.logger)
	start := time.Now()
	var res DefineResult

	if len(docs) == 0 {
		return res, ErrNoDocuments
	}

	filtered, report := FilterUnits(docs)
	res.Filter, res.Documents = report, filtered
	for _, doc := range filtered {
		if !report.Changed(doc.Tag) {
			continue
		}
		log.Info("benchmark.filter.removed", "tag", doc.Tag, "units", report.Removed[doc.Tag])
		if err := d.store.SaveDocument(ctx, doc); err != nil {
			return res, fmt.Errorf("save filtered document %s: %w", doc.Tag, err)
		}
	}

	state, resumed, err := d.resume(ctx, opts)
	if err != nil {
		return res, err
	}
	res.Resumed = resumed
	if !resumed {
		fw, err := d.builder.Build(ctx, filtered)
		if err != nil {
			return res, err
		}
		if err := d.store.ResetMapping(ctx); err != nil {
			return res, fmt.Errorf("reset mapping: %w", err)
		}
		if err := d.store.SaveFramework(ctx, fw); err != nil {
			return res, fmt.Errorf("save framework: %w", err)
		}
		m, mr, err := d.mapper.Map(ctx, fw, filtered)
		res.Initial = mr
		if err != nil {
			return res, err
		}
		if err := d.store.SaveMapping(ctx, fw, m); err != nil {
			return res, fmt.Errorf("save mapping: %w", err)
		}
		state = entity.NewState(fw, m)
	}

	closure, err := d.loop.Run(ctx, state, filtered)
	res.Closure = closure
	res.Framework, res.Mapping = state.Framework, state.Mapping
	if err != nil {
		return res, err
	}

	if err := entity.CheckConsistency(state.Framework, state.Mapping); err != nil {
		return res, err
	}
	if err := d.store.SaveFramework(ctx, state.Framework); err != nil {
		return res, fmt.Errorf("save framework: %w", err)
	}
	if err := d.store.SaveMapping(ctx, state.Framework, state.Mapping); err != nil {
		return res, fmt.Errorf("save mapping: %w", err)
	}

	log.Info("benchmark.define.done",
		"resumed", resumed,
		"filtered", report.RemovedCount(),
		"dimensions", state.Framework.Len(),
		"outcome", closure.Outcome,
		"unconverged", len(closure.Unconverged),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (d *Definer) resume(ctx context.Context, opts DefineOptions) (*entity.State, bool, error) {
	if !opts.Resume {
		return nil, false, nil
	}
	log := common.LoggerFrom(ctx, d.logger)
	fw, err := d.store.LoadFramework(ctx)
	if errors.Is(err, common.ErrNotFound) {
		log.Info("benchmark.define.resume_fresh", "reason", "no stored framework")
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load framework: %w", err)
	}
	m, err := d.store.LoadMapping(ctx)
	if errors.Is(err, common.ErrNotFound) {
		m = entity.NewMapping()
	} else if err != nil {
		return nil, false, fmt.Errorf("load mapping: %w", err)
	}
	if err := entity.CheckConsistency(fw, m); err != nil {
		return nil, false, err
	}
	log.Info("benchmark.define.resumed", "dimensions", fw.Len(), "mapped", m.Size())
	return entity.NewState(fw, m), true, nil
}
