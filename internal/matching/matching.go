// Package matching validates raw survey responses and matches students across
// survey stages.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// DefaultMinAnswered is the number of items a response must answer to count as valid.
const DefaultMinAnswered = 5

// Matched is the cleaned response set for one stage.
type Matched struct {
	Stage model.Stage
	Count int
	Table *table.Table
}

// Matcher drops invalid responses and keeps only students present in every supplied stage.
type Matcher struct {
	minAnswered int
}

// New creates a Matcher. minAnswered <= 0 selects DefaultMinAnswered.
func New(minAnswered int) *Matcher {
	if minAnswered <= 0 {
		minAnswered = DefaultMinAnswered
	}
	if minAnswered > len(model.Items) {
		minAnswered = len(model.Items)
	}
	return &Matcher{minAnswered: minAnswered}
}

// Match validates each supplied stage and, when more than one stage is supplied,
// restricts every stage to the students found in all of them. Rows keep the order of
// the earliest supplied stage.
func (m *Matcher) Match(ctx context.Context, raw map[model.Stage]*table.Table) (map[model.Stage]Matched, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("no response tables supplied")
	}

	var stages []model.Stage
	cleaned := make(map[model.Stage]map[string]int, len(raw))
	var order []string
	for _, s := range model.StageOrder {
		t, ok := raw[s]
		if !ok {
			continue
		}
		if t == nil {
			return nil, fmt.Errorf("%s responses: nil table", s)
		}
		ids, pos, err := m.clean(t)
		if err != nil {
			return nil, fmt.Errorf("%s responses: %w", s, err)
		}
		if order == nil {
			order = ids
		}
		stages = append(stages, s)
		cleaned[s] = pos
		slog.Debug("validated responses", "stage", s, "raw", t.Len(), "valid", len(ids))
	}
	if len(stages) != len(raw) {
		return nil, fmt.Errorf("unknown survey stage in %d supplied tables", len(raw))
	}

	var kept []string
	for _, id := range order {
		inAll := true
		for _, s := range stages {
			if _, ok := cleaned[s][id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			kept = append(kept, id)
		}
	}

	out := make(map[model.Stage]Matched, len(stages))
	for _, s := range stages {
		idx := make([]int, len(kept))
		for i, id := range kept {
			idx[i] = cleaned[s][id]
		}
		t := raw[s].Take(idx)
		out[s] = Matched{Stage: s, Count: t.Len(), Table: t}
		slog.Info("matched responses", "stage", s, "raw", raw[s].Len(), "matched", t.Len())
	}
	return out, nil
}

// clean returns the normalized IDs of valid rows in table order and the row index of
// each. A repeated ID keeps its last valid row.
func (m *Matcher) clean(t *table.Table) ([]string, map[string]int, error) {
	required := []string{model.ColStudentID}
	for _, it := range model.Items {
		required = append(required, it.Raw)
	}
	var missing []string
	for _, c := range required {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: missing columns %v", table.ErrSchemaMismatch, missing)
	}

	last := make(map[string]int)
	for i := 0; i < t.Len(); i++ {
		if !m.valid(t, i) {
			continue
		}
		last[normalizeID(t.Value(i, model.ColStudentID))] = i
	}

	ids := make([]string, 0, len(last))
	for id := range last {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return last[ids[a]] < last[ids[b]] })
	return ids, last, nil
}

func (m *Matcher) valid(t *table.Table, i int) bool {
	if normalizeID(t.Value(i, model.ColStudentID)) == "" {
		return false
	}
	if t.Has(model.ColFinished) {
		done, err := strconv.ParseBool(strings.TrimSpace(t.Value(i, model.ColFinished)))
		if err != nil || !done {
			return false
		}
	}
	answered := 0
	for _, it := range model.Items {
		if strings.TrimSpace(t.Value(i, it.Raw)) != "" {
			answered++
		}
	}
	return answered >= m.minAnswered
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
