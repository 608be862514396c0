// Package chart renders the report images: box plots of factor and total scores, and
// of individual question scores, comparing a class with the reference population.
package chart

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math"
	"os"
	"slices"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/pavelanni/surveygraph/internal/model"
)

// Output image geometry: 12×9 inches at 100 dpi.
const (
	width  = 12 * vg.Inch
	height = 9 * vg.Inch
	dpi    = 100
)

const fontSize = 16

var stageColors = map[model.Stage]color.RGBA{
	model.StagePre:  {R: 0xec, G: 0xe7, B: 0xf2, A: 0xff},
	model.StageMid:  {R: 0xa6, G: 0xbd, B: 0xdb, A: 0xff},
	model.StagePost: {R: 0x2b, G: 0x8c, B: 0xbe, A: 0xff},
}

var outline = draw.LineStyle{Color: color.Black, Width: vg.Points(0.5)}

// Counts are the sample sizes printed in the Questions chart titles.
type Counts struct {
	YoursPost int // matched POST responses of the reported class
	Other     int // reference POST rows at the course level
}

// swatch is a legend thumbnail: a filled, outlined square.
type swatch struct {
	fill color.Color
}

func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.fill, c.ClipPolygonY(pts))
	pts = append(pts, pts[0])
	c.StrokeLines(outline, c.ClipLinesY(pts)...)
}

func newPlot(title string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = font.Length(fontSize)
	p.Title.Padding = vg.Points(6)
	for _, a := range []*plot.Axis{&p.X, &p.Y} {
		a.Label.TextStyle.Font.Size = font.Length(fontSize)
		a.Tick.Label.Font.Size = font.Length(fontSize - 2)
	}
	p.Legend.TextStyle.Font.Size = font.Length(fontSize - 2)
	return p
}

// addLegend adds one entry per stage, in stage order.
func addLegend(p *plot.Plot, stages []model.Stage, left bool) {
	p.Legend.Top = true
	p.Legend.Left = left
	p.Legend.Padding = vg.Points(4)
	for _, s := range stages {
		p.Legend.Add(string(s), swatch{fill: stageColors[s]})
	}
}

// newBox builds a styled box for one group. It returns nil for an empty group, which
// gonum cannot summarize.
func newBox(values plotter.Values, loc float64, w, offset vg.Length, stage model.Stage) (*plotter.BoxPlot, error) {
	if len(values) == 0 {
		return nil, nil
	}
	b, err := plotter.NewBoxPlot(w, loc, values)
	if err != nil {
		return nil, fmt.Errorf("box plot: %w", err)
	}
	b.Offset = offset
	b.FillColor = stageColors[stage]
	b.BoxStyle = outline
	b.MedianStyle = outline
	b.WhiskerStyle = outline
	b.GlyphStyle.Radius = vg.Points(2)
	return b, nil
}

// offset places box i of n side by side around the group center.
func offset(i, n int, w vg.Length) vg.Length {
	return (vg.Length(i) - vg.Length(n-1)/2) * w
}

// stagesOf returns the stages found in rows of the given source, in stage order.
func stagesOf(rows []model.ScoreRow, src model.Source) []model.Stage {
	var out []model.Stage
	for _, s := range model.StageOrder {
		if slices.ContainsFunc(rows, func(r model.ScoreRow) bool {
			return r.Survey == s && r.Data == src
		}) {
			out = append(out, s)
		}
	}
	return out
}

// collect gathers finite values of rows from src at stage.
func collect(rows []model.ScoreRow, src model.Source, stage model.Stage, value func(model.ScoreRow) float64) plotter.Values {
	var out plotter.Values
	for _, r := range rows {
		if r.Data != src || r.Survey != stage {
			continue
		}
		v := value(r)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// save lays out plots in a grid on one canvas and writes it as PNG, replacing path.
func save(ctx context.Context, path string, grid [][]*plot.Plot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      len(grid[0]),
		PadX:      vg.Points(24),
		PadY:      vg.Points(24),
		PadTop:    vg.Points(12),
		PadBottom: vg.Points(12),
		PadLeft:   vg.Points(12),
		PadRight:  vg.Points(12),
	}
	canvases := plot.Align(grid, tiles, dc)
	for j := range grid {
		for i := range grid[j] {
			grid[j][i].Draw(canvases[j][i])
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	slog.Info("wrote chart", "path", path)
	return nil
}
