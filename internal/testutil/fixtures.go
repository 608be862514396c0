// Package testutil builds deterministic survey fixtures for tests.
package testutil

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// Weights returns a weights table where choice 1 scores 1, choice 2 scores 0.5,
// choice 3 scores 0.25 and choice 4 scores nothing, for every item.
func Weights() model.Weights {
	w := make(model.Weights)
	for _, it := range model.Items {
		w[model.WeightKey(it.Raw, "1")] = 1
		w[model.WeightKey(it.Raw, "2")] = 0.5
		w[model.WeightKey(it.Raw, "3")] = 0.25
		w[model.WeightKey(it.Raw, "4")] = 0
	}
	return w
}

// RawColumns is the header of a raw response export.
func RawColumns() []string {
	cols := []string{model.ColStudentID, model.ColFinished}
	for _, it := range model.Items {
		cols = append(cols, it.Raw)
	}
	return cols
}

// RawResponses builds a finished, fully answered response for each student ID.
// seed varies the chosen answers between stages.
func RawResponses(t *testing.T, ids []string, seed int) *table.Table {
	t.Helper()
	rows := make([][]string, len(ids))
	for i, id := range ids {
		row := []string{id, "1"}
		for k, it := range model.Items {
			c := 1 + (i*7+k*3+seed)%4
			cell := strconv.Itoa(c)
			if strings.HasSuffix(it.Raw, "D") && c < 4 {
				cell += "," + strconv.Itoa(c+1)
			}
			row = append(row, cell)
		}
		rows[i] = row
	}
	tbl, err := table.New(RawColumns(), rows)
	if err != nil {
		t.Fatalf("RawResponses: %v", err)
	}
	return tbl
}

// IDs returns n student identifiers with the given prefix.
func IDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%03d@example.edu", prefix, i)
	}
	return ids
}

// ReferenceColumns is the header of a reference (historical) score file.
func ReferenceColumns() []string {
	cols := RawColumns()
	cols = append(cols, model.ColClassID, model.ColCourseLevel)
	cols = append(cols, model.ItemScoreColumns()...)
	return append(cols, string(model.ScaleTotal))
}

// Reference builds n scored historical rows for each level, using a fixed seed so the
// data is identical between calls.
func Reference(t *testing.T, seed uint64, n int, levels ...string) *table.Table {
	t.Helper()
	rnd := rand.New(rand.NewPCG(seed, seed+1))
	steps := []float64{0, 0.25, 0.5, 1}
	var rows [][]string
	for _, level := range levels {
		for i := 0; i < n; i++ {
			row := []string{fmt.Sprintf("ref-%s-%d", level, i), "1"}
			for range model.Items {
				row = append(row, strconv.Itoa(1+rnd.IntN(4)))
			}
			row = append(row, "class-"+strconv.Itoa(i%5), level)
			total := 0.0
			for range model.Items {
				v := steps[rnd.IntN(len(steps))]
				total += v
				row = append(row, table.FormatFloat(v))
			}
			row = append(row, table.FormatFloat(total))
			rows = append(rows, row)
		}
	}
	tbl, err := table.New(ReferenceColumns(), rows)
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	return tbl
}

// WriteTable writes tbl as dir/name and returns the path.
func WriteTable(t *testing.T, dir, name string, tbl *table.Table) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := tbl.WriteFile(path); err != nil {
		t.Fatalf("WriteTable %s: %v", name, err)
	}
	return path
}
