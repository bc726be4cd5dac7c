package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/regbench/internal/common"
	"github.com/joseph-ayodele/regbench/internal/entity"
)

// Sheet names in the report workbook.
const (
	SheetBenchmarking = "Benchmarking"
	SheetCoverage     = "Coverage"
	SheetUnconverged  = "Unconverged"
)

// Excel rejects cells longer than 32767 characters.
const maxCellRunes = 32000

// Source is what the report needs from the repository.
type Source interface {
	LoadDocuments(ctx context.Context) ([]entity.SourceDocument, error)
	LoadFramework(ctx context.Context) (*entity.Framework, error)
	LoadMapping(ctx context.Context) (*entity.Mapping, error)
	LoadAnalysis(ctx context.Context) (*entity.BenchmarkAnalysis, error)
}

// Report is the material for one workbook. Analysis may be nil.
type Report struct {
	Documents []entity.SourceDocument
	Framework *entity.Framework
	Mapping   *entity.Mapping
	Analysis  *entity.BenchmarkAnalysis
}

// Service is a tiny façade over the repository that produces XLSX bytes.
type Service struct {
	source Source
	logger *slog.Logger
}

func NewService(source Source, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// ExportReportXLSX loads the stored run and renders it. A missing analysis only
// drops the benchmarking sheet; a missing framework or mapping is an error.
func (s *Service) ExportReportXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()
	var (
		r   Report
		err error
	)
	if r.Documents, err = s.source.LoadDocuments(ctx); err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	if r.Framework, err = s.source.LoadFramework(ctx); err != nil {
		return nil, fmt.Errorf("load framework: %w", err)
	}
	if r.Mapping, err = s.source.LoadMapping(ctx); err != nil {
		return nil, fmt.Errorf("load mapping: %w", err)
	}
	r.Analysis, err = s.source.LoadAnalysis(ctx)
	if errors.Is(err, common.ErrNotFound) {
		s.logger.Warn("export.xlsx.no_analysis")
	} else if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}

	f, err := BuildWorkbook(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"dimensions", r.Framework.Len(),
		"documents", len(r.Documents),
		"analysis", r.Analysis != nil,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// BuildWorkbook renders r into a new workbook.
func BuildWorkbook(r Report) (*excelize.File, error) {
	f := excelize.NewFile()
	st, err := newStyles(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	first := SheetCoverage
	if r.Analysis != nil {
		first = SheetBenchmarking
	}
	// the default sheet is renamed so the workbook opens on the first real one
	if err := f.SetSheetName("Sheet1", first); err != nil {
		_ = f.Close()
		return nil, err
	}
	if r.Analysis != nil {
		if err := writeBenchmarking(f, st, r.Analysis); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if err := writeCoverage(f, st, r); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeUnconverged(f, st, r); err != nil {
		_ = f.Close()
		return nil, err
	}
	f.SetActiveSheet(0)
	return f, nil
}

type styles struct {
	header, dimension, body int
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	var err error
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Family: "Calibri", Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"000000"}},
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("xlsx style: %w", err)
	}
	st.dimension, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Family: "Calibri", Size: 10},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9D9D9"}},
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("xlsx style: %w", err)
	}
	st.body, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Calibri", Size: 10},
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("xlsx style: %w", err)
	}
	return st, nil
}

func ensureSheet(f *excelize.File, name string) error {
	if index, _ := f.GetSheetIndex(name); index == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", name, err)
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, style int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("xlsx row %d: %w", row, err)
	}
	end, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, end, style)
}

// writeBenchmarking lays out one grey dimension row followed by a provisions row,
// with a column per document and a final comparative column.
func writeBenchmarking(f *excelize.File, st styles, a *entity.BenchmarkAnalysis) error {
	const sheet = SheetBenchmarking
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	header := make([]any, 0, len(a.Columns)+1)
	for _, c := range a.Columns {
		header = append(header, "Provisions ("+c+")")
	}
	header = append(header, "Comparative Analysis")
	if err := writeRow(f, sheet, 1, st.header, header...); err != nil {
		return err
	}

	row := 2
	width := len(header)
	for _, d := range a.Dimensions {
		if err := writeRow(f, sheet, row, st.dimension, d.Name); err != nil {
			return err
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		end, _ := excelize.CoordinatesToCellName(width, row)
		if err := f.MergeCell(sheet, start, end); err != nil {
			return fmt.Errorf("xlsx merge: %w", err)
		}
		if err := f.SetCellStyle(sheet, start, end, st.dimension); err != nil {
			return err
		}
		row++

		values := make([]any, 0, width)
		for _, c := range a.Columns {
			p := d.CountryProvisions[c]
			if !entity.HasProvision(p) {
				p = ""
			}
			values = append(values, truncate(p, maxCellRunes))
		}
		values = append(values, truncate(d.Comparative, maxCellRunes))
		if err := writeRow(f, sheet, row, st.body, values...); err != nil {
			return err
		}
		row++
	}
	last, _ := excelize.ColumnNumberToName(width)
	_ = f.SetColWidth(sheet, "A", last, 48)
	return nil
}

// writeCoverage lists every dimension with its mapped unit ids per document.
func writeCoverage(f *excelize.File, st styles, r Report) error {
	const sheet = SheetCoverage
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	header := []any{"Dimension", "Label", "Description"}
	for i := range r.Documents {
		header = append(header, r.Documents[i].DisplayName())
	}
	header = append(header, "Units")
	if err := writeRow(f, sheet, 1, st.header, header...); err != nil {
		return err
	}

	row := 2
	for _, d := range r.Framework.Dimensions() {
		values := []any{d.Key, d.Label, d.Description}
		total := 0
		for i := range r.Documents {
			ids := r.Mapping.IDs(d.Key, r.Documents[i].Tag)
			total += len(ids)
			parts := make([]string, len(ids))
			for j, id := range ids {
				parts[j] = string(id)
			}
			values = append(values, strings.Join(parts, ", "))
		}
		values = append(values, total)
		if err := writeRow(f, sheet, row, st.body, values...); err != nil {
			return err
		}
		row++
	}
	_ = f.SetColWidth(sheet, "A", "A", 16)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "C", 60)
	return nil
}

// writeUnconverged lists units that ended the run without a dimension.
func writeUnconverged(f *excelize.File, st styles, r Report) error {
	const sheet = SheetUnconverged
	if err := ensureSheet(f, sheet); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 1, st.header, "Document", "Unit ID", "Heading", "Summary"); err != nil {
		return err
	}
	state := entity.NewState(r.Framework, r.Mapping)
	row := 2
	for _, ref := range state.Unmapped(r.Documents) {
		var u entity.LogicalUnit
		for i := range r.Documents {
			if r.Documents[i].Tag == ref.Tag {
				u, _ = r.Documents[i].Unit(ref.ID)
				break
			}
		}
		if err := writeRow(f, sheet, row, st.body, ref.Tag, string(ref.ID), u.Heading, truncate(u.Summary, 140)); err != nil {
			return err
		}
		row++
	}
	_ = f.SetColWidth(sheet, "A", "B", 16)
	_ = f.SetColWidth(sheet, "C", "C", 32)
	_ = f.SetColWidth(sheet, "D", "D", 80)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
