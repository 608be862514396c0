package report

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

type reference struct {
	pre, post           *table.Table // full files, as persisted
	levelPre, levelPost *table.Table // rows at the report level, tagged
	combined            *table.Table // both files on their shared columns
}

func loadReference(cfg model.ReportConfig) (*reference, error) {
	pre, err := table.ReadFile(cfg.OtherPreFile)
	if err != nil {
		return nil, fmt.Errorf("load reference PRE data: %w", err)
	}
	post, err := table.ReadFile(cfg.OtherPostFile)
	if err != nil {
		return nil, fmt.Errorf("load reference POST data: %w", err)
	}
	for _, f := range []struct {
		path string
		t    *table.Table
	}{{cfg.OtherPreFile, pre}, {cfg.OtherPostFile, post}} {
		if !f.t.Has(model.ColCourseLevel) {
			return nil, fmt.Errorf("reference %s: %w: missing column %s", f.path, table.ErrSchemaMismatch, model.ColCourseLevel)
		}
	}

	shared := table.Intersect(pre, post)
	sharedPre, err := pre.Select(shared...)
	if err != nil {
		return nil, err
	}
	sharedPost, err := post.Select(shared...)
	if err != nil {
		return nil, err
	}
	combined, err := table.Concat(sharedPre, sharedPost)
	if err != nil {
		return nil, fmt.Errorf("combine reference data: %w", err)
	}

	return &reference{
		pre:  pre,
		post: post,
		levelPre: atLevel(pre, cfg.Level, cfg.OtherPreFile).
			With(model.ColSurvey, string(model.StagePre)).
			With(model.ColData, string(model.SourceOther)),
		levelPost: atLevel(post, cfg.Level, cfg.OtherPostFile).
			With(model.ColSurvey, string(model.StagePost)).
			With(model.ColData, string(model.SourceOther)),
		combined: combined,
	}, nil
}

// atLevel keeps the reference rows at level that carry every item score and a total.
// Rows with a blank score are dropped; they stay in the file itself.
func atLevel(t *table.Table, level, path string) *table.Table {
	scoreCols := append(model.ItemScoreColumns(), string(model.ScaleTotal))
	var blank int
	kept := t.Filter(func(r table.Row) bool {
		if r.Get(model.ColCourseLevel) != level {
			return false
		}
		for _, c := range scoreCols {
			if strings.TrimSpace(r.Get(c)) == "" {
				blank++
				return false
			}
		}
		return true
	})
	if blank > 0 {
		slog.Warn("skipping reference rows with blank scores", "path", path, "level", level, "rows", blank)
	}
	return kept
}

// aggregate projects the class and reference tables onto the long-form columns and
// stacks them: class stages first, in stage order, then reference PRE and POST.
func aggregate(ref *reference, scored map[model.Stage]*table.Table) (*table.Table, error) {
	cols := model.LongFormColumns()
	var parts []*table.Table
	add := func(name string, t *table.Table) error {
		p, err := t.Select(cols...)
		if err != nil {
			return fmt.Errorf("long form %s: %w", name, err)
		}
		parts = append(parts, p)
		return nil
	}
	for _, s := range model.StageOrder {
		if t, ok := scored[s]; ok {
			if err := add("class "+string(s), t); err != nil {
				return nil, err
			}
		}
	}
	if err := add("reference PRE", ref.levelPre); err != nil {
		return nil, err
	}
	if err := add("reference POST", ref.levelPost); err != nil {
		return nil, err
	}
	long, err := table.Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("long form: %w", err)
	}
	return long, nil
}

// LongForm converts a long-form table with factor scores into typed rows.
func LongForm(t *table.Table) ([]model.ScoreRow, error) {
	rows := make([]model.ScoreRow, t.Len())
	for i := range rows {
		r := model.ScoreRow{
			Data:        model.Source(t.Value(i, model.ColData)),
			Survey:      model.Stage(t.Value(i, model.ColSurvey)),
			CourseLevel: t.Value(i, model.ColCourseLevel),
		}
		if r.Data != model.SourceYours && r.Data != model.SourceOther {
			return nil, fmt.Errorf("long form row %d: unknown data source %q", i, r.Data)
		}
		for k, it := range model.Items {
			v, err := t.Float(i, it.Score)
			if err != nil {
				return nil, fmt.Errorf("long form row %d: %w", i, err)
			}
			r.Items[k] = v
		}
		for _, f := range []struct {
			scale model.Scale
			dst   *float64
		}{
			{model.ScaleModels, &r.Models},
			{model.ScaleMethods, &r.Methods},
			{model.ScaleActions, &r.Actions},
			{model.ScaleTotal, &r.Total},
		} {
			v, err := t.Float(i, string(f.scale))
			if err != nil {
				return nil, fmt.Errorf("long form row %d: %w", i, err)
			}
			*f.dst = v
		}
		rows[i] = r
	}
	return rows, nil
}
