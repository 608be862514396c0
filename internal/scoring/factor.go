package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// DefaultRidge keeps the correlation matrix invertible when items are collinear.
const DefaultRidge = 1e-6

// ErrInsufficientReference is returned when the reference population is too small to
// estimate correlations.
var ErrInsufficientReference = errors.New("insufficient reference rows for factor model")

// FactorModel holds a fitted independent-cluster factor model.
type FactorModel struct {
	means    []float64
	sds      []float64
	loadings *mat.Dense // items × factors
	weights  *mat.Dense // items × factors
}

// FactorScores fits the factor model on reference and returns target with the
// models, methods and actions columns added. The model is refit on every call.
func (s *Scorer) FactorScores(reference, target *table.Table) (*table.Table, error) {
	fm, err := s.Fit(reference)
	if err != nil {
		return nil, err
	}
	return fm.Apply(target)
}

// Fit estimates the model from the item score columns of reference. Blank scores are
// imputed with the item mean.
func (s *Scorer) Fit(reference *table.Table) (*FactorModel, error) {
	n := reference.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: have %d, need 2", ErrInsufficientReference, n)
	}
	p := len(model.Items)
	cols, err := scoreColumns(reference)
	if err != nil {
		return nil, fmt.Errorf("fit factor model: %w", err)
	}

	fm := &FactorModel{means: make([]float64, p), sds: make([]float64, p)}
	for j, col := range cols {
		present := make([]float64, 0, n)
		for _, v := range col {
			if !math.IsNaN(v) {
				present = append(present, v)
			}
		}
		if len(present) < 2 {
			continue
		}
		fm.means[j], fm.sds[j] = stat.MeanStdDev(present, nil)
	}

	z := fm.standardize(cols, n)
	var r mat.SymDense
	r.SymOuterK(1/float64(n-1), z.T())
	for j := 0; j < p; j++ {
		r.SetSym(j, j, 1)
		if fm.sds[j] == 0 {
			for k := 0; k < p; k++ {
				if k != j {
					r.SetSym(j, k, 0)
				}
			}
		}
	}

	fm.loadings = clusterLoadings(&r, fm.sds)

	ridge := s.Ridge
	if ridge == 0 {
		ridge = DefaultRidge
	}
	reg := mat.NewSymDense(p, nil)
	reg.CopySym(&r)
	for j := 0; j < p; j++ {
		reg.SetSym(j, j, reg.At(j, j)+ridge)
	}
	fm.weights = new(mat.Dense)
	if err := fm.weights.Solve(reg, fm.loadings); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("solve factor-score weights: %w", err)
		}
		slog.Warn("ill-conditioned correlation matrix", "condition", float64(cond))
	}
	slog.Debug("fitted factor model", "reference_rows", n)
	return fm, nil
}

// Apply standardizes the item scores of target with the reference moments and adds the
// factor score columns. An empty target yields an empty result with the columns added.
func (fm *FactorModel) Apply(target *table.Table) (*table.Table, error) {
	n := target.Len()
	cols, err := scoreColumns(target)
	if err != nil {
		return nil, fmt.Errorf("apply factor model: %w", err)
	}
	scores := make([][]string, len(model.FactorScales))
	for f := range scores {
		scores[f] = make([]string, n)
	}
	if n > 0 {
		var f mat.Dense
		f.Mul(fm.standardize(cols, n), fm.weights)
		for i := 0; i < n; i++ {
			for k := range model.FactorScales {
				scores[k][i] = table.FormatFloat(f.At(i, k))
			}
		}
	}
	out := target
	for k, scale := range model.FactorScales {
		if out, err = out.WithValues(string(scale), scores[k]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Loading returns the loading of item i on factor f.
func (fm *FactorModel) Loading(i, f int) float64 {
	return fm.loadings.At(i, f)
}

// standardize maps scores to z-scores under the reference moments. Blank scores and
// zero-variance items become 0. n must be positive.
func (fm *FactorModel) standardize(cols [][]float64, n int) *mat.Dense {
	z := mat.NewDense(n, len(cols), nil)
	for j, col := range cols {
		if fm.sds[j] == 0 {
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			z.Set(i, j, (v-fm.means[j])/fm.sds[j])
		}
	}
	return z
}

// clusterLoadings gives each item a loading on its own factor only: the leading
// eigenvector of the factor's correlation block scaled by the root of its eigenvalue.
func clusterLoadings(r *mat.SymDense, sds []float64) *mat.Dense {
	p := len(model.Items)
	lambda := mat.NewDense(p, len(model.FactorScales), nil)
	for f, scale := range model.FactorScales {
		var members []int
		for i, it := range model.Items {
			if it.Factor == scale && sds[i] > 0 {
				members = append(members, i)
			}
		}
		switch len(members) {
		case 0:
			continue
		case 1:
			lambda.Set(members[0], f, 1)
			continue
		}
		block := mat.NewSymDense(len(members), nil)
		for a, i := range members {
			for b, j := range members[a:] {
				block.SetSym(a, a+b, r.At(i, j))
			}
		}
		var eig mat.EigenSym
		if !eig.Factorize(block, true) {
			slog.Warn("eigen decomposition failed", "factor", scale)
			continue
		}
		values := eig.Values(nil)
		var vecs mat.Dense
		eig.VectorsTo(&vecs)
		lead := len(values) - 1
		root := math.Sqrt(max(values[lead], 0))
		sum := 0.0
		for a := range members {
			sum += vecs.At(a, lead)
		}
		sign := 1.0
		if sum < 0 {
			sign = -1
		}
		for a, i := range members {
			lambda.Set(i, f, sign*root*vecs.At(a, lead))
		}
	}
	return lambda
}

func scoreColumns(t *table.Table) ([][]float64, error) {
	cols := make([][]float64, len(model.Items))
	for j, it := range model.Items {
		v, err := t.Floats(it.Score)
		if err != nil {
			return nil, err
		}
		cols[j] = v
	}
	return cols, nil
}
