// Package workbook exports report scores to an Excel workbook.
package workbook

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat"

	"github.com/pavelanni/surveygraph/internal/model"
)

// Sheet names.
const (
	SummarySheet  = "Summary"
	LongFormSheet = "Long Form"
)

// SummaryHeader is the header row of the Summary sheet.
var SummaryHeader = []string{"Data", "Survey", "Scale", "N", "Mean", "Median", "Q1", "Q3", "Min", "Max"}

// Stat summarizes one scale for one class and stage.
type Stat struct {
	Data   model.Source
	Survey model.Stage
	Scale  model.Scale
	N      int
	Mean   float64
	Median float64
	Q1     float64
	Q3     float64
	Min    float64
	Max    float64
}

// Summarize computes per-scale statistics for each class and stage present in rows,
// ordered by class, stage and scale. Non-finite values are left out of every statistic.
func Summarize(rows []model.ScoreRow) []Stat {
	var out []Stat
	for _, src := range []model.Source{model.SourceYours, model.SourceOther} {
		for _, stage := range model.StageOrder {
			for _, scale := range model.Scales {
				var vals []float64
				for _, r := range rows {
					if r.Data != src || r.Survey != stage {
						continue
					}
					if v := r.Value(scale); !math.IsNaN(v) && !math.IsInf(v, 0) {
						vals = append(vals, v)
					}
				}
				if len(vals) == 0 {
					continue
				}
				slices.Sort(vals)
				out = append(out, Stat{
					Data:   src,
					Survey: stage,
					Scale:  scale,
					N:      len(vals),
					Mean:   stat.Mean(vals, nil),
					Median: stat.Quantile(0.5, stat.Empirical, vals, nil),
					Q1:     stat.Quantile(0.25, stat.Empirical, vals, nil),
					Q3:     stat.Quantile(0.75, stat.Empirical, vals, nil),
					Min:    vals[0],
					Max:    vals[len(vals)-1],
				})
			}
		}
	}
	return out
}

// Write saves a workbook with the Summary and Long Form sheets to path.
func Write(path string, rows []model.ScoreRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(LongFormSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	stats := Summarize(rows)
	summary := make([][]any, 0, len(stats))
	for _, s := range stats {
		summary = append(summary, []any{string(s.Data), string(s.Survey), string(s.Scale),
			s.N, s.Mean, s.Median, s.Q1, s.Q3, s.Min, s.Max})
	}
	if err := writeSheet(f, SummarySheet, SummaryHeader, summary, bold); err != nil {
		return err
	}

	header := longFormHeader()
	long := make([][]any, 0, len(rows))
	for _, r := range rows {
		rec := []any{string(r.Data), string(r.Survey), r.CourseLevel}
		for _, v := range r.Items {
			rec = append(rec, v)
		}
		rec = append(rec, r.Total, r.Models, r.Methods, r.Actions)
		long = append(long, rec)
	}
	if err := writeSheet(f, LongFormSheet, header, long, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	slog.Info("wrote workbook", "path", path, "summary_rows", len(stats), "long_form_rows", len(rows))
	return nil
}

func longFormHeader() []string {
	header := model.LongFormColumns()
	for _, s := range model.FactorScales {
		header = append(header, string(s))
	}
	return header
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]any, headerStyle int) error {
	h := make([]any, len(header))
	for i, c := range header {
		h[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &h); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+2, err)
		}
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 14); err != nil {
		return fmt.Errorf("%s column width: %w", sheet, err)
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
