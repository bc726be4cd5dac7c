package benchmark

import (
	"github.com/joseph-ayodele/regbench/constants"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

// IsNotApplicable reports whether a unit summary marks the unit as contentless.
// The whole normalized summary must equal "not applicable"; containing it is not enough.
func IsNotApplicable(summary string) bool {
	return constants.NormalizeSummary(summary) == constants.NotApplicable
}

// FilterReport records what FilterUnits removed, per document tag.
type FilterReport struct {
	Removed map[string][]entity.UnitID
	Kept    int
}

// RemovedCount returns the total number of removed units.
func (r FilterReport) RemovedCount() int {
	n := 0
	for _, ids := range r.Removed {
		n += len(ids)
	}
	return n
}

// Changed reports whether tag lost any units.
func (r FilterReport) Changed(tag string) bool {
	return len(r.Removed[tag]) > 0
}

// FilterUnits returns copies of docs without not-applicable units. Input is not modified.
// Applying it to its own output removes nothing.
func FilterUnits(docs []entity.SourceDocument) ([]entity.SourceDocument, FilterReport) {
	report := FilterReport{Removed: make(map[string][]entity.UnitID)}
	out := make([]entity.SourceDocument, len(docs))
	for i, d := range docs {
		kept := make([]entity.LogicalUnit, 0, len(d.Units))
		for _, u := range d.Units {
			if IsNotApplicable(u.Summary) {
				report.Removed[d.Tag] = append(report.Removed[d.Tag], u.ID)
				continue
			}
			kept = append(kept, u)
		}
		d.Units = kept
		out[i] = d
		report.Kept += len(kept)
	}
	return out, report
}
