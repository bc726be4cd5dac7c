package llm

import (
	"strings"

	"github.com/joseph-ayodele/regbench/internal/entity"
)

// BuildFrameworkPrompt asks for the initial dimension set over the corpus digest.
func BuildFrameworkPrompt(docs []entity.SourceDocument) string {
	parts := []string{
		"You are designing a framework for comparing regulatory documents side by side.",
		"Below is every document's overview followed by the id, heading and summary of each of its sections.",
		"Propose benchmarking dimensions so that every substantive topic in any document is covered by at least one dimension.",
		"Dimensions must be clearly distinguishable from each other. A dimension may be backed by a single document.",
		`Respond with JSON only: {"` + FrameworkKey + `": [{"dimension_1": "Label: one sentence describing the scope", "dimension_2": "..."}]}`,
		"Number keys consecutively starting at dimension_1.",
	}
	var b strings.Builder
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\n\n")
	b.WriteString(Digest(docs))
	return b.String()
}

// Digest renders the corpus as compact text: overview, then id/heading/summary per unit.
func Digest(docs []entity.SourceDocument) string {
	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("=== Document ")
		b.WriteString(d.Tag)
		b.WriteString(" ===\n")
		if ov := d.Overview.String(); ov != "" {
			b.WriteString(ov)
			b.WriteByte('\n')
		}
		for _, u := range d.Units {
			writeUnit(&b, u)
		}
	}
	return b.String()
}

// BuildRelevancePrompt asks which dimensions a single unit is relevant to.
func BuildRelevancePrompt(fw *entity.Framework, u entity.LogicalUnit) string {
	var b strings.Builder
	b.WriteString("Decide which benchmarking dimensions the section below is relevant to.\n")
	b.WriteString("Dimensions:\n")
	b.WriteString(fw.Overview())
	b.WriteString("\n\nSection:\n")
	writeUnit(&b, u)
	b.WriteString("\nRespond with JSON only, one flag per dimension key (1 relevant, 0 not relevant): ")
	b.WriteString(`{"` + MappingKey + `": [{"dimension_1": 0, "dimension_2": 1}]}`)
	return b.String()
}

// BuildUnmappedPrompt asks the oracle to place a section no dimension currently covers.
// nextKey is the first free key so minted dimensions never collide with existing ones.
func BuildUnmappedPrompt(fw *entity.Framework, tag string, u entity.LogicalUnit, nextKey string) string {
	var b strings.Builder
	b.WriteString("The section below is not yet covered by any benchmarking dimension.\n")
	b.WriteString("Attach it to one or more existing dimensions, or define a new dimension if none fits.\n")
	b.WriteString("Existing dimensions:\n")
	if fw.Len() == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(fw.Overview())
	}
	b.WriteString("\n\nSource document: ")
	b.WriteString(tag)
	b.WriteString("\nSection:\n")
	writeUnit(&b, u)
	b.WriteString("\nNew dimensions must use keys starting at ")
	b.WriteString(nextKey)
	b.WriteString(". You may refine the label and description of an existing dimension by restating it.\n")
	b.WriteString("Return at least one assignment. Respond with JSON only: ")
	b.WriteString(`{"` + MappingKey + `": [{"dimension_k": "Label: description"}]}`)
	return b.String()
}

// BuildNonCorePrompt asks which dimensions are administrative rather than substantive.
func BuildNonCorePrompt(fw *entity.Framework) string {
	var b strings.Builder
	b.WriteString("Below is a list of benchmarking dimensions used to compare regulations.\n")
	b.WriteString("Identify the dimensions that are not core to a substantive comparison, such as definitions, ")
	b.WriteString("commencement dates or document administration.\n\n")
	b.WriteString(fw.Overview())
	b.WriteString("\n\nRespond with JSON only: ")
	b.WriteString(`{"` + NonCoreKey + `": ["dimension_k", ...]}`)
	return b.String()
}

// ComparativeInput is one dimension's content gathered per document.
type ComparativeInput struct {
	Dimension entity.Dimension
	// Sections maps a document display name to the joined text of its mapped units.
	Sections map[string]string
	// Overviews maps a document display name to its regulation overview.
	Overviews map[string]string
	Order     []string
}

// BuildComparativePrompt asks for per-document provisions and a cross-document synthesis.
func BuildComparativePrompt(in ComparativeInput) string {
	var b strings.Builder
	b.WriteString("Compare how each jurisdiction addresses the benchmarking dimension below.\n")
	b.WriteString("Dimension: ")
	b.WriteString(in.Dimension.Text())
	b.WriteString("\n")
	for _, name := range in.Order {
		b.WriteString("\n--- ")
		b.WriteString(name)
		b.WriteString(" ---\n")
		if ov := strings.TrimSpace(in.Overviews[name]); ov != "" {
			b.WriteString(ov)
			b.WriteString("\n\n")
		}
		if txt := strings.TrimSpace(in.Sections[name]); txt != "" {
			b.WriteString(txt)
		} else {
			b.WriteString("(no provisions mapped)")
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nKey country_provisions by the names in the section headings.")
	b.WriteString("\nRespond with JSON only: ")
	b.WriteString(`{"` + ComparativeKey + `": {"country_provisions": {"<jurisdiction>": "summary of provisions"}, "comparative_analysis": "similarities and differences"}}`)
	return b.String()
}

func writeUnit(b *strings.Builder, u entity.LogicalUnit) {
	b.WriteString("Logical Unit ID: ")
	b.WriteString(string(u.ID))
	if h := strings.TrimSpace(u.Heading); h != "" {
		b.WriteString("\nHeading: ")
		b.WriteString(h)
	}
	b.WriteString("\nSummary: ")
	b.WriteString(strings.TrimSpace(u.Summary))
	b.WriteByte('\n')
}
