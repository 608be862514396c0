package chart

import (
	"context"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/pavelanni/surveygraph/internal/i18n"
	"github.com/pavelanni/surveygraph/internal/model"
)

var scaleTitles = map[model.Scale]string{
	model.ScaleModels:  "ScaleModels",
	model.ScaleMethods: "ScaleMethods",
	model.ScaleActions: "ScaleActions",
	model.ScaleTotal:   "ScaleTotal",
}

// TotalScores draws the factor and total score distributions as a 2×2 grid of box
// plots, one panel per scale, grouped by class and colored by stage. Only the first
// panel has a legend. MID boxes appear only when some row is a MID row.
func TotalScores(ctx context.Context, rows []model.ScoreRow, path string) error {
	stages := []model.Stage{model.StagePre, model.StagePost}
	if hasStage(rows, model.StageMid) {
		stages = model.StageOrder
	}
	sources := []model.Source{model.SourceYours, model.SourceOther}
	boxWidth := vg.Points(36)

	grid := [][]*plot.Plot{make([]*plot.Plot, 2), make([]*plot.Plot, 2)}
	for n, scale := range model.Scales {
		p := newPlot(i18n.T(ctx, scaleTitles[scale]))
		p.Y.Label.Text = i18n.T(ctx, "Score")
		value := func(r model.ScoreRow) float64 { return r.Value(scale) }
		for si, stage := range stages {
			for gi, src := range sources {
				b, err := newBox(collect(rows, src, stage, value), float64(gi),
					boxWidth, offset(si, len(stages), boxWidth), stage)
				if err != nil {
					return err
				}
				if b != nil {
					p.Add(b)
				}
			}
		}
		p.NominalX(i18n.T(ctx, "YourClass"), i18n.T(ctx, "OtherClasses"))
		p.X.Min, p.X.Max = -0.5, 1.5
		if n == 0 {
			addLegend(p, stages, true)
		}
		grid[n/2][n%2] = p
	}
	return save(ctx, path, grid)
}

func hasStage(rows []model.ScoreRow, s model.Stage) bool {
	for _, r := range rows {
		if r.Survey == s {
			return true
		}
	}
	return false
}
