// Package scoring turns raw survey answers into item and total scores and projects
// scored rows onto the three-factor model of the instrument.
package scoring

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// Weights file columns.
const (
	colChoice = "Choice"
	colWeight = "Weight"
)

// Scorer is the default scoring collaborator.
type Scorer struct {
	// Ridge is added to the diagonal of the correlation matrix before solving for
	// factor-score weights. Zero selects DefaultRidge.
	Ridge float64
}

// New creates a Scorer with default settings.
func New() *Scorer {
	return &Scorer{}
}

// LoadWeights reads a two-column Choice,Weight CSV such as
//
//	Choice,Weight
//	Q1B_1,1
//	Q1D_3,0.5
func LoadWeights(path string) (model.Weights, error) {
	t, err := table.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	if !t.Has(colChoice) || !t.Has(colWeight) {
		return nil, fmt.Errorf("load weights %s: %w: want columns %s,%s", path, table.ErrSchemaMismatch, colChoice, colWeight)
	}
	w := make(model.Weights, t.Len())
	for i := 0; i < t.Len(); i++ {
		key := strings.TrimSpace(t.Value(i, colChoice))
		if key == "" {
			continue
		}
		v, err := t.Float(i, colWeight)
		if err != nil {
			return nil, fmt.Errorf("load weights %s: %w", path, err)
		}
		if math.IsNaN(v) {
			return nil, fmt.Errorf("load weights %s: %w: blank weight for %s", path, table.ErrNotNumeric, key)
		}
		w[key] = v
	}
	slog.Debug("loaded weights", "path", path, "choices", len(w))
	return w, nil
}

// Score adds the item score columns and TotalScores to a table of raw responses.
// An item scores the sum of the weights of its selected choices, clipped to [0, 1].
// Unanswered items and unknown choices score 0.
func (s *Scorer) Score(raw *table.Table, weights model.Weights) (*table.Table, error) {
	var missing []string
	for _, it := range model.Items {
		if !raw.Has(it.Raw) {
			missing = append(missing, it.Raw)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("score: %w: missing columns %v", table.ErrSchemaMismatch, missing)
	}

	n := raw.Len()
	totals := make([]float64, n)
	unknown := make(map[string]struct{})
	out := raw
	for _, it := range model.Items {
		col := make([]string, n)
		for i := 0; i < n; i++ {
			v := itemScore(it.Raw, raw.Value(i, it.Raw), weights, unknown)
			totals[i] += v
			col[i] = table.FormatFloat(v)
		}
		var err error
		if out, err = out.WithValues(it.Score, col); err != nil {
			return nil, fmt.Errorf("score %s: %w", it.Raw, err)
		}
	}
	col := make([]string, n)
	for i, v := range totals {
		col[i] = table.FormatFloat(v)
	}
	out, err := out.WithValues(string(model.ScaleTotal), col)
	if err != nil {
		return nil, fmt.Errorf("score totals: %w", err)
	}
	if len(unknown) > 0 {
		keys := make([]string, 0, len(unknown))
		for k := range unknown {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		slog.Warn("choices without weight scored as zero", "count", len(keys), "choices", keys)
	}
	return out, nil
}

func itemScore(item, cell string, weights model.Weights, unknown map[string]struct{}) float64 {
	choices := strings.FieldsFunc(cell, func(r rune) bool { return r == ',' || r == ';' })
	sum := 0.0
	for _, c := range choices {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		key := model.WeightKey(item, c)
		w, ok := weights[key]
		if !ok {
			unknown[key] = struct{}{}
			continue
		}
		sum += w
	}
	return min(max(sum, 0), 1)
}
