package benchmark

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

// MapReport summarizes one initial mapping pass.
type MapReport struct {
	Units       int
	Mapped      int
	Failed      []entity.UnitRef
	UnknownKeys []string
}

// InitialMapper asks, per unit, which dimensions it is relevant to.
type InitialMapper struct {
	oracle llm.Oracle
	pool   *async.Pool
	model  string
	logger *slog.Logger
}

func NewInitialMapper(oracle llm.Oracle, pool *async.Pool, model string, logger *slog.Logger) *InitialMapper {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = async.NewPool(async.WithLogger(logger))
	}
	return &InitialMapper{oracle: oracle, pool: pool, model: model, logger: logger}
}

type unitTask struct {
	ref  entity.UnitRef
	unit entity.LogicalUnit
}

func tasksFor(docs []entity.SourceDocument) []unitTask {
	var out []unitTask
	for i := range docs {
		for _, u := range docs[i].Units {
			out = append(out, unitTask{ref: entity.UnitRef{Tag: docs[i].Tag, ID: u.ID}, unit: u})
		}
	}
	return out
}

// Map classifies every unit against fw. Every framework dimension appears in the
// result with an (possibly empty) id list per document. A unit whose call fails
// is logged and left unmapped; only cancellation of ctx is returned as an error.
func (m *InitialMapper) Map(ctx context.Context, fw *entity.Framework, docs []entity.SourceDocument) (*entity.Mapping, MapReport, error) {
	log := common.LoggerFrom(ctx, m.logger)
	start := time.Now()

	tags := entity.Tags(docs)
	mapping := entity.NewMapping()
	for _, k := range fw.Keys() {
		mapping.Ensure(k, tags...)
	}

	tasks := tasksFor(docs)
	report := MapReport{Units: len(tasks)}
	if fw.Len() == 0 || len(tasks) == 0 {
		log.Warn("benchmark.mapper.skipped", "dimensions", fw.Len(), "units", len(tasks))
		return mapping, report, nil
	}

	log.Info("benchmark.mapper.start", "dimensions", fw.Len(), "units", len(tasks), "workers", m.pool.Workers())
	var (
		mu      sync.Mutex
		unknown = make(map[string]struct{})
	)
	// per-unit failures land in report.Failed; Each's joined error adds nothing
	_ = async.Each(ctx, m.pool, tasks, func(ctx context.Context, t unitTask) error {
		relevant, err := m.classify(ctx, log, fw, t)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			log.Warn("benchmark.mapper.unit_failed", "unit", t.ref.String(), "error", err)
			report.Failed = append(report.Failed, t.ref)
			return err
		}
		hit := false
		for _, k := range relevant {
			if !fw.Has(k) {
				unknown[k] = struct{}{}
				continue
			}
			mapping.Add(k, t.ref.Tag, t.ref.ID)
			hit = true
		}
		if hit {
			report.Mapped++
		}
		return nil
	})
	if err := ctx.Err(); err != nil {
		return mapping, report, err
	}

	for k := range unknown {
		report.UnknownKeys = append(report.UnknownKeys, k)
	}
	entity.SortNatural(report.UnknownKeys)
	if len(report.UnknownKeys) > 0 {
		log.Warn("benchmark.mapper.unknown_keys_ignored", "keys", report.UnknownKeys)
	}
	log.Info("benchmark.mapper.done",
		"units", report.Units,
		"mapped", report.Mapped,
		"failed", len(report.Failed),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return mapping, report, nil
}

func (m *InitialMapper) classify(ctx context.Context, log *slog.Logger, fw *entity.Framework, t unitTask) ([]string, error) {
	raw, err := m.oracle.Ask(ctx, llm.Request{
		Prompt:   llm.BuildRelevancePrompt(fw, t.unit),
		Model:    m.model,
		JSONMode: true,
		Purpose:  constants.StageRelevance,
	})
	if err != nil {
		return nil, err
	}
	relevant, dropped, err := llm.DecodeRelevance(raw)
	if len(dropped) > 0 {
		log.Warn("benchmark.mapper.flags_dropped", "unit", t.ref.String(), "keys", dropped)
	}
	return relevant, err
}
