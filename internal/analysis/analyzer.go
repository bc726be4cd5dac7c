package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

// ErrNothingToAnalyze is returned when no dimension has a mapped unit.
var ErrNothingToAnalyze = errors.New("no mapped dimensions to analyze")

// Analyzer produces the per-dimension comparative analysis from a finished mapping.
type Analyzer struct {
	oracle llm.Oracle
	pool   *async.Pool
	model  string
	logger *slog.Logger
}

func NewAnalyzer(oracle llm.Oracle, pool *async.Pool, model string, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = async.NewPool(async.WithLogger(logger))
	}
	return &Analyzer{oracle: oracle, pool: pool, model: model, logger: logger}
}

// Run skips non-core dimensions and asks for a comparison of every other mapped
// dimension. A dimension whose call fails is recorded in Failed and left out.
// Only cancellation is returned as an error once collection succeeded.
func (a *Analyzer) Run(ctx context.Context, fw *entity.Framework, m *entity.Mapping, docs []entity.SourceDocument) (*entity.BenchmarkAnalysis, error) {
	log := common.LoggerFrom(ctx, a.logger)
	start := time.Now()

	cols := columns(docs)
	inputs := collect(fw, m, cols)
	if len(inputs) == 0 {
		return nil, ErrNothingToAnalyze
	}
	log.Info("analysis.start", "dimensions", len(inputs), "documents", len(docs))

	skip := a.nonCore(ctx, log, fw, inputs)
	var todo []llm.ComparativeInput
	for _, in := range inputs {
		if _, ok := skip[in.Dimension.Key]; ok {
			log.Info("analysis.skip_non_core", "dimension", in.Dimension.Key, "label", in.Dimension.Label)
			continue
		}
		todo = append(todo, in)
	}

	results := make([]*entity.DimensionAnalysis, len(todo))
	var (
		mu     sync.Mutex
		failed []string
	)
	idx := make([]int, len(todo))
	for i := range idx {
		idx[i] = i
	}
	_ = async.Each(ctx, a.pool, idx, func(ctx context.Context, i int) error {
		in := todo[i]
		raw, err := a.oracle.Ask(ctx, llm.Request{
			Prompt:   llm.BuildComparativePrompt(in),
			Model:    a.model,
			JSONMode: true,
			Purpose:  constants.StageComparative,
		})
		if err == nil {
			var p llm.Provisions
			if p, err = llm.DecodeComparative(raw); err == nil {
				keys := make([]string, 0, len(p.CountryProvisions))
				for k := range p.CountryProvisions {
					keys = append(keys, k)
				}
				entity.SortNatural(keys)
				results[i] = &entity.DimensionAnalysis{
					Key:               in.Dimension.Key,
					Name:              in.Dimension.Label,
					CountryProvisions: align(cols, p.CountryProvisions, keys),
					Comparative:       p.Comparative,
				}
				return nil
			}
		}
		log.Warn("analysis.dimension_failed", "dimension", in.Dimension.Key, "error", err)
		mu.Lock()
		failed = append(failed, in.Dimension.Key)
		mu.Unlock()
		return err
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &entity.BenchmarkAnalysis{Columns: make([]string, len(cols))}
	for i, c := range cols {
		out.Columns[i] = c.name
	}
	for _, r := range results {
		if r != nil {
			out.Dimensions = append(out.Dimensions, *r)
		}
	}
	for k := range skip {
		out.NonCore = append(out.NonCore, k)
	}
	entity.SortNatural(out.NonCore)
	entity.SortNatural(failed)
	out.Failed = failed

	log.Info("analysis.done",
		"analyzed", len(out.Dimensions),
		"non_core", len(out.NonCore),
		"failed", len(out.Failed),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// nonCore asks once which of the collected dimensions are not substantive.
// Any failure yields an empty set. Keys outside inputs are ignored.
func (a *Analyzer) nonCore(ctx context.Context, log *slog.Logger, fw *entity.Framework, inputs []llm.ComparativeInput) map[string]struct{} {
	subset := entity.NewFramework()
	for _, in := range inputs {
		d, _ := fw.Get(in.Dimension.Key)
		subset.Add(d)
	}
	raw, err := a.oracle.Ask(ctx, llm.Request{
		Prompt:   llm.BuildNonCorePrompt(subset),
		Model:    a.model,
		JSONMode: true,
		Purpose:  constants.StageNonCore,
	})
	if err != nil {
		log.Warn("analysis.non_core_failed", "error", err)
		return nil
	}
	keys, err := llm.DecodeNonCore(raw)
	if err != nil {
		log.Warn("analysis.non_core_unparseable", "error", err)
		return nil
	}
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if subset.Has(k) {
			out[k] = struct{}{}
		}
	}
	if len(out) == len(inputs) {
		// never skip everything
		log.Warn("analysis.non_core_ignored", "reason", "every dimension flagged")
		return nil
	}
	return out
}
