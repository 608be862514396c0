package model

import (
	"strings"
	"time"
)

// Stage identifies a survey administration.
type Stage string

const (
	StagePre  Stage = "PRE"
	StageMid  Stage = "MID"
	StagePost Stage = "POST"
)

// StageOrder is the display order of survey stages.
var StageOrder = []Stage{StagePre, StageMid, StagePost}

// Source tells whether a row belongs to the class being reported or to the reference population.
type Source string

const (
	SourceYours Source = "Yours"
	SourceOther Source = "Other"
)

// Column names shared by response, score and long-form tables.
const (
	ColData        = "Data"
	ColSurvey      = "Survey"
	ColCourseLevel = "Course_Level"
	ColClassID     = "Class_ID"
	ColStudentID   = "Student_ID"
	ColFinished    = "Finished"
)

// Scale is a score column drawn in the factor chart.
type Scale string

const (
	ScaleModels  Scale = "models"
	ScaleMethods Scale = "methods"
	ScaleActions Scale = "actions"
	ScaleTotal   Scale = "TotalScores"
)

// FactorScales are the latent dimensions computed by the factor model.
var FactorScales = []Scale{ScaleModels, ScaleMethods, ScaleActions}

// Scales lists every charted scale, factors first.
var Scales = []Scale{ScaleModels, ScaleMethods, ScaleActions, ScaleTotal}

// Item describes one scored question of the instrument.
type Item struct {
	Raw    string // raw response column
	Score  string // item score column
	Label  string // label shown on charts
	Factor Scale  // factor the item loads on
}

// Items is the fixed, ordered list of scored questions.
var Items = []Item{
	{Raw: "Q1B", Score: "Q1Bs", Label: "Q1B", Factor: ScaleModels},
	{Raw: "Q1D", Score: "Q1Ds", Label: "Q1D", Factor: ScaleMethods},
	{Raw: "Q1E", Score: "Q1Es", Label: "Q1E", Factor: ScaleActions},
	{Raw: "Q2B", Score: "Q2Bs", Label: "Q2B", Factor: ScaleModels},
	{Raw: "Q2D", Score: "Q2Ds", Label: "Q2D", Factor: ScaleMethods},
	{Raw: "Q2E", Score: "Q2Es", Label: "Q2E", Factor: ScaleActions},
	{Raw: "Q3B", Score: "Q3Bs", Label: "Q3B", Factor: ScaleModels},
	{Raw: "Q3D", Score: "Q3Ds", Label: "Q3D", Factor: ScaleMethods},
	{Raw: "Q3E", Score: "Q3Es", Label: "Q3E", Factor: ScaleActions},
	{Raw: "Q4B", Score: "Q4Bs", Label: "Q4B", Factor: ScaleMethods},
}

// NumItems is len(Items).
const NumItems = 10

// ItemScoreColumns returns the item score column names in item order.
func ItemScoreColumns() []string {
	cols := make([]string, len(Items))
	for i, it := range Items {
		cols[i] = it.Score
	}
	return cols
}

// LongFormColumns is the schema every table is projected onto before aggregation.
func LongFormColumns() []string {
	cols := []string{ColData, ColSurvey, ColCourseLevel}
	cols = append(cols, ItemScoreColumns()...)
	return append(cols, string(ScaleTotal))
}

// Weights maps a response choice key (see WeightKey) to its scoring weight.
type Weights map[string]float64

// WeightKey builds the key for a choice of an item, e.g. "Q1D_3".
func WeightKey(item, choice string) string {
	return item + "_" + strings.TrimSpace(choice)
}

// ScoreRow is one long-form record: a student's scores at one stage.
type ScoreRow struct {
	Data        Source
	Survey      Stage
	CourseLevel string
	Items       [NumItems]float64
	Models      float64
	Methods     float64
	Actions     float64
	Total       float64
}

// Value returns the row's score on the given scale.
func (r ScoreRow) Value(s Scale) float64 {
	switch s {
	case ScaleModels:
		return r.Models
	case ScaleMethods:
		return r.Methods
	case ScaleActions:
		return r.Actions
	default:
		return r.Total
	}
}

// ReportConfig holds the run parameters set via CLI flags or the library caller.
type ReportConfig struct {
	OtherPreFile  string `json:"other_pre" validate:"required"`
	OtherPostFile string `json:"other_post" validate:"required"`
	Level         string `json:"level" validate:"required"`
	ClassID       string `json:"class_id" validate:"required"`
	OutDir        string `json:"out_dir"`  // empty means the working directory
	WorkbookFile  string `json:"workbook"` // empty disables the summary workbook
}

// Shape names a supported combination of supplied stages.
type Shape string

const (
	ShapePostOnly   Shape = "post"
	ShapePrePost    Shape = "pre_post"
	ShapePreMidPost Shape = "pre_mid_post"
)

// RunRecord is one report run as kept in the run ledger.
type RunRecord struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Level     string    `json:"level"`
	Shape     Shape     `json:"shape"`
	ValidPre  int       `json:"valid_pre"`
	ValidMid  int       `json:"valid_mid"`
	ValidPost int       `json:"valid_post"`
	NOther    int       `json:"n_other"`
	Persisted bool      `json:"persisted"`
	InputHash string    `json:"input_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// RunHistory is the top-level JSON structure printed by the history command.
type RunHistory struct {
	Database string      `json:"database"`
	Runs     []RunRecord `json:"runs"`
}
