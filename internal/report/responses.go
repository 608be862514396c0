package report

import (
	"errors"
	"fmt"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// ErrUnsupportedStages is returned for a combination of response tables the report
// cannot be built from: no POST responses, or MID responses without PRE.
var ErrUnsupportedStages = errors.New("unsupported combination of survey stages")

// Responses is the set of raw response tables supplied for one class. It is one of
// PostOnly, PrePost or PreMidPost.
type Responses interface {
	Shape() model.Shape
	responses()
}

// PostOnly holds responses collected after the course only.
type PostOnly struct {
	Post *table.Table
}

// PrePost holds responses collected before and after the course.
type PrePost struct {
	Pre, Post *table.Table
}

// PreMidPost holds responses collected before, during and after the course.
type PreMidPost struct {
	Pre, Mid, Post *table.Table
}

func (PostOnly) Shape() model.Shape   { return model.ShapePostOnly }
func (PrePost) Shape() model.Shape    { return model.ShapePrePost }
func (PreMidPost) Shape() model.Shape { return model.ShapePreMidPost }

func (PostOnly) responses()   {}
func (PrePost) responses()    {}
func (PreMidPost) responses() {}

// NewResponses picks the variant matching the supplied (non-nil) tables.
func NewResponses(pre, mid, post *table.Table) (Responses, error) {
	switch {
	case post == nil:
		return nil, fmt.Errorf("%w: POST responses are required", ErrUnsupportedStages)
	case mid != nil && pre == nil:
		return nil, fmt.Errorf("%w: MID responses need PRE responses", ErrUnsupportedStages)
	case mid != nil:
		return PreMidPost{Pre: pre, Mid: mid, Post: post}, nil
	case pre != nil:
		return PrePost{Pre: pre, Post: post}, nil
	default:
		return PostOnly{Post: post}, nil
	}
}

// stageTables resolves the variant into the tables handed to the matcher.
func stageTables(r Responses) (map[model.Stage]*table.Table, error) {
	var out map[model.Stage]*table.Table
	switch v := r.(type) {
	case PostOnly:
		out = map[model.Stage]*table.Table{model.StagePost: v.Post}
	case PrePost:
		out = map[model.Stage]*table.Table{model.StagePre: v.Pre, model.StagePost: v.Post}
	case PreMidPost:
		out = map[model.Stage]*table.Table{model.StagePre: v.Pre, model.StageMid: v.Mid, model.StagePost: v.Post}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedStages, r)
	}
	for s, t := range out {
		if t == nil {
			return nil, fmt.Errorf("%w: missing %s responses", ErrUnsupportedStages, s)
		}
	}
	return out, nil
}
