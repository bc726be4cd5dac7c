package analysis

import (
	"strings"

	"github.com/joseph-ayodele/regbench/internal/entity"
	"github.com/joseph-ayodele/regbench/internal/llm"
)

// column is one document's place in the report.
type column struct {
	name string
	doc  *entity.SourceDocument
}

// columns names every document by its display name; duplicate names get the tag appended.
func columns(docs []entity.SourceDocument) []column {
	seen := make(map[string]int, len(docs))
	for i := range docs {
		seen[docs[i].DisplayName()]++
	}
	out := make([]column, len(docs))
	for i := range docs {
		name := docs[i].DisplayName()
		if seen[name] > 1 && name != docs[i].Tag {
			name += " (" + docs[i].Tag + ")"
		}
		out[i] = column{name: name, doc: &docs[i]}
	}
	return out
}

// collect gathers, for every framework dimension with at least one mapped unit,
// the full content of its units per document.
func collect(fw *entity.Framework, m *entity.Mapping, cols []column) []llm.ComparativeInput {
	overviews := make(map[string]string, len(cols))
	order := make([]string, len(cols))
	for i, c := range cols {
		overviews[c.name] = c.doc.Overview.String()
		order[i] = c.name
	}

	var out []llm.ComparativeInput
	for _, d := range fw.Dimensions() {
		sections := make(map[string]string)
		for _, c := range cols {
			var b strings.Builder
			for _, id := range m.IDs(d.Key, c.doc.Tag) {
				u, ok := c.doc.Unit(id)
				if !ok {
					continue
				}
				renderUnit(&b, u)
			}
			if b.Len() > 0 {
				sections[c.name] = b.String()
			}
		}
		if len(sections) == 0 {
			continue
		}
		out = append(out, llm.ComparativeInput{
			Dimension: d,
			Sections:  sections,
			Overviews: overviews,
			Order:     order,
		})
	}
	return out
}

func renderUnit(b *strings.Builder, u entity.LogicalUnit) {
	b.WriteString("Logical Unit ")
	b.WriteString(string(u.ID))
	if h := strings.TrimSpace(u.Heading); h != "" {
		b.WriteString(": ")
		b.WriteString(h)
	}
	b.WriteByte('\n')
	for _, line := range u.Content {
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
}

// align rekeys provisions to column names. Keys are matched case-insensitively
// against the column name, the tag or the country; leftovers fill unused columns
// in keyOrder, which callers pass in natural key order.
func align(cols []column, got map[string]string, keyOrder []string) map[string]string {
	out := make(map[string]string, len(got))
	used := make(map[string]bool, len(got))
	var leftovers []string
	for _, k := range keyOrder {
		v := got[k]
		if c, ok := matchColumn(cols, k); ok && !used[c] {
			out[c] = v
			used[c] = true
			continue
		}
		leftovers = append(leftovers, v)
	}
	for _, c := range cols {
		if len(leftovers) == 0 {
			break
		}
		if used[c.name] {
			continue
		}
		out[c.name] = leftovers[0]
		leftovers = leftovers[1:]
	}
	return out
}

func matchColumn(cols []column, key string) (string, bool) {
	k := strings.TrimSpace(key)
	for _, c := range cols {
		for _, cand := range []string{c.name, c.doc.Tag, c.doc.Overview.Country, c.doc.Overview.Authority} {
			if cand != "" && strings.EqualFold(k, cand) {
				return c.name, true
			}
		}
	}
	return "", false
}
