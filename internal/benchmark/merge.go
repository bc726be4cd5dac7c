package benchmark

import (
	"strings"

	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

// UnitAssignments is one unit's answer from a Mapping phase.
type UnitAssignments struct {
	Unit        entity.UnitRef
	Assignments []llm.Assignment
}

// Rekey records a minted key that collided with a different dimension minted
// earlier in the same phase and was stored under a fresh key instead.
type Rekey struct {
	Unit entity.UnitRef
	From string
	To   string
}

// MergeReport summarizes one Merging phase.
type MergeReport struct {
	Assigned int      // assignments applied
	Created  []string // keys minted, in creation order
	Updated  []string // existing keys whose label or description changed
	Rekeyed  []Rekey
}

// MergeAssignments folds a batch into state. Mapped ids are only ever added.
// tags seeds empty per-document lists for minted dimensions. The batch is applied
// in slice order; callers pass it in unit order, not completion order.
func MergeAssignments(state *entity.State, batch []UnitAssignments, tags []string) MergeReport {
	var report MergeReport
	fw, m := state.Framework, state.Mapping
	preexisting := make(map[string]struct{}, fw.Len())
	for _, k := range fw.Keys() {
		preexisting[k] = struct{}{}
	}
	// key -> label of the dimension minted under it during this phase
	minted := make(map[string]string)
	// folded label -> key, covering rekeyed mints
	mintedKey := make(map[string]string)
	updated := make(map[string]struct{})

	for _, ua := range batch {
		for _, a := range ua.Assignments {
			key := strings.TrimSpace(a.Key)
			if key == "" {
				continue
			}
			switch {
			case has(preexisting, key):
				before, _ := fw.Get(key)
				if a.HasText() && fw.Update(key, a.Label, a.Description) {
					if after, _ := fw.Get(key); after != before {
						if _, seen := updated[key]; !seen {
							updated[key] = struct{}{}
							report.Updated = append(report.Updated, key)
						}
					}
				}
			case hasLabel(minted, key):
				if a.HasText() && !sameLabel(minted[key], a.Label) {
					to, seen := mintedKey[foldLabel(labelOf(a))]
					if !seen {
						to = fw.NextKey()
						mint(fw, m, to, a, tags)
						minted[to] = labelOf(a)
						mintedKey[foldLabel(labelOf(a))] = to
						report.Created = append(report.Created, to)
					}
					report.Rekeyed = append(report.Rekeyed, Rekey{Unit: ua.Unit, From: key, To: to})
					key = to
				}
			default:
				mint(fw, m, key, a, tags)
				minted[key] = labelOf(a)
				if _, seen := mintedKey[foldLabel(labelOf(a))]; !seen {
					mintedKey[foldLabel(labelOf(a))] = key
				}
				report.Created = append(report.Created, key)
			}
			m.Ensure(key, tags...)
			m.Add(key, ua.Unit.Tag, ua.Unit.ID)
			report.Assigned++
		}
	}
	return report
}

func mint(fw *entity.Framework, m *entity.Mapping, key string, a llm.Assignment, tags []string) {
	fw.Add(entity.Dimension{Key: key, Label: labelOf(a), Description: a.Description})
	m.Ensure(key, tags...)
}

func labelOf(a llm.Assignment) string {
	if l := strings.TrimSpace(a.Label); l != "" {
		return l
	}
	return constants.FallbackDimensionLabel
}

func sameLabel(a, b string) bool {
	return foldLabel(a) == foldLabel(b)
}

func foldLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func has(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}

func hasLabel(set map[string]string, k string) bool {
	_, ok := set[k]
	return ok
}
