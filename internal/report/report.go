// Package report builds the class comparison report: it matches and scores a class's
// survey responses, compares them with the reference population of earlier classes,
// renders the comparison charts and appends the class to the reference files.
//
// The reference CSV files are read and then rewritten without any locking. Two runs
// against the same files at the same time race, and the later write wins.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/pavelanni/surveygraph/internal/chart"
	"github.com/pavelanni/surveygraph/internal/matching"
	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/scoring"
	"github.com/pavelanni/surveygraph/internal/table"
	"github.com/pavelanni/surveygraph/internal/workbook"
)

// Output image names.
const (
	FactorsImage   = "FactorsLevel.png"
	QuestionsImage = "QuestionsLevel.png"
)

// Matcher validates raw responses and matches students across stages.
type Matcher interface {
	Match(ctx context.Context, raw map[model.Stage]*table.Table) (map[model.Stage]matching.Matched, error)
}

// Scorer computes item, total and factor scores.
type Scorer interface {
	Score(raw *table.Table, weights model.Weights) (*table.Table, error)
	FactorScores(reference, target *table.Table) (*table.Table, error)
}

// StageResult describes the cleaned responses of one supplied stage.
type StageResult struct {
	Stage   model.Stage
	Valid   int
	Cleaned *table.Table
}

// Result is the outcome of a report run. Pre and Mid are nil when those stages were
// not supplied.
type Result struct {
	Shape          model.Shape
	Pre            *StageResult
	Mid            *StageResult
	Post           StageResult
	LongForm       []model.ScoreRow
	NOther         int
	FactorsImage   string
	QuestionsImage string
	Workbook       string
	Persisted      bool
}

// Option customizes GenerateGraph.
type Option func(*generator)

// WithMatcher replaces the default matcher.
func WithMatcher(m Matcher) Option {
	return func(g *generator) { g.matcher = m }
}

// WithScorer replaces the default scorer.
func WithScorer(s Scorer) Option {
	return func(g *generator) { g.scorer = s }
}

type generator struct {
	matcher Matcher
	scorer  Scorer
}

// GenerateGraph runs the whole report for one class:
//
//  1. load both reference files and keep the rows at cfg.Level;
//  2. match and score the class responses;
//  3. build the long-form table and add factor scores fitted on all reference rows;
//  4. write FactorsLevel.png and QuestionsLevel.png to cfg.OutDir;
//  5. when PRE responses were supplied, append the class's PRE and POST rows to the
//     reference files.
func GenerateGraph(ctx context.Context, cfg model.ReportConfig, weights model.Weights, responses Responses, opts ...Option) (*Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, errors.New("no scoring weights")
	}
	raw, err := stageTables(responses)
	if err != nil {
		return nil, err
	}
	g := &generator{matcher: matching.New(0), scorer: scoring.New()}
	for _, opt := range opts {
		opt(g)
	}

	log := slog.With("class_id", cfg.ClassID, "level", cfg.Level, "shape", responses.Shape())
	log.Info("generating report")

	ref, err := loadReference(cfg)
	if err != nil {
		return nil, err
	}
	log.Info("loaded reference data",
		"pre_rows", ref.pre.Len(), "post_rows", ref.post.Len(),
		"pre_at_level", ref.levelPre.Len(), "post_at_level", ref.levelPost.Len())

	matched, err := g.matcher.Match(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("match responses: %w", err)
	}

	res := &Result{Shape: responses.Shape(), NOther: ref.levelPost.Len()}
	scored := make(map[model.Stage]*table.Table, len(matched))
	for _, s := range model.StageOrder {
		if _, ok := raw[s]; !ok {
			continue
		}
		m, ok := matched[s]
		if !ok {
			return nil, fmt.Errorf("matcher returned no %s responses", s)
		}
		sr := &StageResult{Stage: s, Valid: m.Count, Cleaned: m.Table}
		switch s {
		case model.StagePre:
			res.Pre = sr
		case model.StageMid:
			res.Mid = sr
		case model.StagePost:
			res.Post = *sr
		}

		t, err := g.scorer.Score(m.Table, weights)
		if err != nil {
			return nil, fmt.Errorf("score %s responses: %w", s, err)
		}
		scored[s] = t.With(model.ColData, string(model.SourceYours)).
			With(model.ColSurvey, string(s)).
			With(model.ColClassID, cfg.ClassID).
			With(model.ColCourseLevel, cfg.Level)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	long, err := aggregate(ref, scored)
	if err != nil {
		return nil, err
	}
	long, err = g.scorer.FactorScores(ref.combined, long)
	if err != nil {
		return nil, fmt.Errorf("factor scores: %w", err)
	}
	res.LongForm, err = LongForm(long)
	if err != nil {
		return nil, err
	}
	log.Info("built long form", "rows", len(res.LongForm))

	res.FactorsImage = filepath.Join(cfg.OutDir, FactorsImage)
	if err := chart.TotalScores(ctx, res.LongForm, res.FactorsImage); err != nil {
		return nil, fmt.Errorf("render %s: %w", FactorsImage, err)
	}
	res.QuestionsImage = filepath.Join(cfg.OutDir, QuestionsImage)
	counts := chart.Counts{YoursPost: res.Post.Valid, Other: res.NOther}
	if err := chart.Questions(ctx, res.LongForm, counts, res.QuestionsImage); err != nil {
		return nil, fmt.Errorf("render %s: %w", QuestionsImage, err)
	}

	if cfg.WorkbookFile != "" {
		if err := workbook.Write(cfg.WorkbookFile, res.LongForm); err != nil {
			return nil, err
		}
		res.Workbook = cfg.WorkbookFile
	}

	if res.Pre != nil {
		if err := persist(cfg, ref, scored[model.StagePre], scored[model.StagePost]); err != nil {
			return nil, err
		}
		res.Persisted = true
		log.Info("appended class to reference data", "rows_per_file", res.Post.Valid)
	}
	return res, nil
}
