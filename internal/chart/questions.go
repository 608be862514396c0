package chart

import (
	"context"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/pavelanni/surveygraph/internal/i18n"
	"github.com/pavelanni/surveygraph/internal/model"
)

// Questions draws per-question score distributions as two horizontal box-plot panels,
// the reported class on the left and the reference population on the right. Questions
// run top to bottom in instrument order and both panels share the same question axis.
// The legend goes on the class panel when the class has PRE responses, otherwise on
// the reference panel.
func Questions(ctx context.Context, rows []model.ScoreRow, counts Counts, path string) error {
	boxWidth := vg.Points(12)

	// Items are placed bottom-up, so the first item sits at the top.
	labels := make([]string, model.NumItems)
	for k, it := range model.Items {
		labels[model.NumItems-1-k] = it.Label
	}

	panel := func(src model.Source, title string) (*plot.Plot, []model.Stage, error) {
		p := newPlot(title)
		p.X.Label.Text = i18n.T(ctx, "Score")
		stages := stagesOf(rows, src)
		for si, stage := range stages {
			for k := range model.Items {
				value := func(r model.ScoreRow) float64 { return r.Items[k] }
				// First stage on top within each question.
				b, err := newBox(collect(rows, src, stage, value), float64(model.NumItems-1-k),
					boxWidth, -offset(si, len(stages), boxWidth), stage)
				if err != nil {
					return nil, nil, err
				}
				if b != nil {
					b.Horizontal = true
					p.Add(b)
				}
			}
		}
		p.Y.Min, p.Y.Max = -0.5, float64(model.NumItems)-0.5
		return p, stages, nil
	}

	yours, yoursStages, err := panel(model.SourceYours,
		i18n.Td(ctx, "YourClassN", map[string]any{"Count": counts.YoursPost}))
	if err != nil {
		return err
	}
	yours.NominalY(labels...)
	yours.Y.Label.Text = i18n.T(ctx, "Question")

	other, otherStages, err := panel(model.SourceOther,
		i18n.Td(ctx, "SimilarClassesN", map[string]any{"Count": counts.Other}))
	if err != nil {
		return err
	}
	// Both panels share the item axis; the left panel labels it.
	other.HideY()

	if hasSourceStage(rows, model.SourceYours, model.StagePre) {
		addLegend(yours, yoursStages, true)
	} else {
		addLegend(other, otherStages, false)
	}
	return save(ctx, path, [][]*plot.Plot{{yours, other}})
}

func hasSourceStage(rows []model.ScoreRow, src model.Source, s model.Stage) bool {
	for _, r := range rows {
		if r.Data == src && r.Survey == s {
			return true
		}
	}
	return false
}
