package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sync"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/async"
	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

var errOracleDown = errors.New("oracle unavailable")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPool() *async.Pool {
	return async.NewPool(async.WithWorkers(3), async.WithLogger(quietLogger()))
}

var unitIDPattern = regexp.MustCompile(`Logical Unit ID: (\S+)`)

func unitIDOf(prompt string) string {
	m := unitIDPattern.FindStringSubmatch(prompt)
	if m == nil {
		return ""
	}
	return m[1]
}

// scriptedOracle answers by stage and unit id; a missing entry is an oracle error.
type scriptedOracle struct {
	mu        sync.Mutex
	framework string
	relevance map[string]string
	unmapped  map[string]string
	calls     map[constants.Stage]int
	asked     map[string]int // unit id -> unmapped-stage calls
}

func newScriptedOracle() *scriptedOracle {
	return &scriptedOracle{
		relevance: map[string]string{},
		unmapped:  map[string]string{},
		calls:     map[constants.Stage]int{},
		asked:     map[string]int{},
	}
}

func (o *scriptedOracle) Ask(_ context.Context, req llm.Request) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[req.Purpose]++
	id := unitIDOf(req.Prompt)
	var (
		out string
		ok  bool
	)
	switch req.Purpose {
	case constants.StageFramework:
		out, ok = o.framework, o.framework != ""
	case constants.StageRelevance:
		out, ok = o.relevance[id]
	case constants.StageUnmapped:
		o.asked[id]++
		out, ok = o.unmapped[id]
	}
	if !ok {
		return "", fmt.Errorf("%w: %s %s", errOracleDown, req.Purpose, id)
	}
	return out, nil
}

func (o *scriptedOracle) callCount(stage constants.Stage) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[stage]
}

func mappingAnswer(pairs string) string {
	return `{"benchmarking_dimensions_mapping": [{` + pairs + `}]}`
}

func unit(id, summary string) entity.LogicalUnit {
	return entity.LogicalUnit{ID: entity.UnitID(id), Heading: "Heading " + id, Summary: summary, Content: []string{"text of " + id}}
}

func doc(tag string, units ...entity.LogicalUnit) entity.SourceDocument {
	return entity.SourceDocument{Tag: tag, Units: units}
}

// memStore is an in-memory Store that enforces the same consistency rule as the real backends.
type memStore struct {
	mu        sync.Mutex
	docs      map[string]entity.SourceDocument
	framework *entity.Framework
	mapping   *entity.Mapping
	ops       []string
	failOn    string
}

func newMemStore() *memStore {
	return &memStore{docs: map[string]entity.SourceDocument{}}
}

func (s *memStore) SaveDocument(_ context.Context, d entity.SourceDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.Tag] = d
	s.ops = append(s.ops, "document:"+d.Tag)
	return nil
}

func (s *memStore) SaveFramework(_ context.Context, fw *entity.Framework) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn == "framework" {
		return errors.New("disk full")
	}
	s.framework = fw.Clone()
	s.ops = append(s.ops, "framework")
	return nil
}

func (s *memStore) SaveMapping(_ context.Context, fw *entity.Framework, m *entity.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.framework == nil {
		return fmt.Errorf("%w: framework not stored", entity.ErrInconsistent)
	}
	if err := entity.CheckConsistency(s.framework, m); err != nil {
		return err
	}
	s.mapping = m.Clone()
	s.ops = append(s.ops, "mapping")
	return nil
}

func (s *memStore) ResetMapping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapping = nil
	s.ops = append(s.ops, "reset")
	return nil
}

func (s *memStore) LoadFramework(context.Context) (*entity.Framework, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.framework == nil {
		return nil, common.ErrNotFound
	}
	return s.framework.Clone(), nil
}

func (s *memStore) LoadMapping(context.Context) (*entity.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping == nil {
		return nil, common.ErrNotFound
	}
	return s.mapping.Clone(), nil
}
