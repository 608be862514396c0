package report

import (
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/surveygraph/internal/matching"
	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
	"github.com/pavelanni/surveygraph/internal/testutil"
)

// fixture writes 50 reference PRE and POST rows at Intro plus 10 at another level.
func fixture(t *testing.T) model.ReportConfig {
	t.Helper()
	dir := t.TempDir()
	pre, err := table.Concat(testutil.Reference(t, 1, 50, "Intro"), testutil.Reference(t, 3, 10, "BFY"))
	require.NoError(t, err)
	post, err := table.Concat(testutil.Reference(t, 2, 50, "Intro"), testutil.Reference(t, 4, 10, "BFY"))
	require.NoError(t, err)
	return model.ReportConfig{
		OtherPreFile:  testutil.WriteTable(t, dir, "other_pre.csv", pre),
		OtherPostFile: testutil.WriteTable(t, dir, "other_post.csv", post),
		Level:         "Intro",
		ClassID:       "phys-101",
		OutDir:        dir,
	}
}

func readTable(t *testing.T, path string) *table.Table {
	t.Helper()
	tbl, err := table.ReadFile(path)
	require.NoError(t, err)
	return tbl
}

func countRows(rows []model.ScoreRow, src model.Source, s model.Stage) int {
	n := 0
	for _, r := range rows {
		if r.Data == src && r.Survey == s {
			n++
		}
	}
	return n
}

func TestGenerateGraphPrePost(t *testing.T) {
	cfg := fixture(t)
	before := readTable(t, cfg.OtherPreFile)

	ids := testutil.IDs("s", 20)
	pre := testutil.RawResponses(t, ids, 0)
	post := testutil.RawResponses(t, append(append([]string{}, ids[2:]...), "x1@example.edu", "x2@example.edu"), 1)
	responses, err := NewResponses(pre, nil, post)
	require.NoError(t, err)

	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), responses)
	require.NoError(t, err)

	assert.Equal(t, model.ShapePrePost, res.Shape)
	require.NotNil(t, res.Pre)
	assert.Nil(t, res.Mid)
	assert.Equal(t, 18, res.Pre.Valid)
	assert.Equal(t, 18, res.Post.Valid)
	assert.Equal(t, res.Pre.Valid, res.Pre.Cleaned.Len())
	assert.Equal(t, res.Post.Valid, res.Post.Cleaned.Len())
	assert.Equal(t, 50, res.NOther)
	assert.True(t, res.Persisted)

	require.Len(t, res.LongForm, 18+18+50+50)
	assert.Equal(t, 18, countRows(res.LongForm, model.SourceYours, model.StagePre))
	assert.Equal(t, 18, countRows(res.LongForm, model.SourceYours, model.StagePost))
	assert.Equal(t, 50, countRows(res.LongForm, model.SourceOther, model.StagePre))
	assert.Equal(t, 50, countRows(res.LongForm, model.SourceOther, model.StagePost))
	for i, r := range res.LongForm {
		assert.Equal(t, "Intro", r.CourseLevel, "row %d", i)
		for _, s := range model.Scales {
			v := r.Value(s)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "row %d %s = %v", i, s, v)
		}
	}

	for _, img := range []string{res.FactorsImage, res.QuestionsImage} {
		info, err := os.Stat(img)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	after := readTable(t, cfg.OtherPreFile)
	assert.Equal(t, before.Columns(), after.Columns())
	require.Equal(t, 60+18, after.Len())
	for i := 0; i < before.Len(); i++ {
		for _, c := range before.Columns() {
			assert.Equal(t, before.Value(i, c), after.Value(i, c), "row %d column %s", i, c)
		}
	}
	for i := before.Len(); i < after.Len(); i++ {
		assert.Equal(t, "Intro", after.Value(i, model.ColCourseLevel))
		assert.Equal(t, "phys-101", after.Value(i, model.ColClassID))
	}
	assert.Equal(t, 60+18, readTable(t, cfg.OtherPostFile).Len())
}

func TestGenerateGraphPreMidPost(t *testing.T) {
	cfg := fixture(t)
	ids := testutil.IDs("s", 12)
	responses, err := NewResponses(
		testutil.RawResponses(t, ids, 0),
		testutil.RawResponses(t, ids[1:], 1),
		testutil.RawResponses(t, ids[:11], 2),
	)
	require.NoError(t, err)

	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), responses)
	require.NoError(t, err)

	require.NotNil(t, res.Pre)
	require.NotNil(t, res.Mid)
	for _, sr := range []StageResult{*res.Pre, *res.Mid, res.Post} {
		assert.Equal(t, 10, sr.Valid, sr.Stage)
		assert.Equal(t, sr.Valid, sr.Cleaned.Len(), sr.Stage)
	}
	assert.Equal(t, 10, countRows(res.LongForm, model.SourceYours, model.StageMid))
	assert.Zero(t, countRows(res.LongForm, model.SourceOther, model.StageMid))
	assert.Equal(t, 60+10, readTable(t, cfg.OtherPostFile).Len(), "MID rows are not persisted")
}

func TestGenerateGraphPostOnlyIsDeterministic(t *testing.T) {
	cfg := fixture(t)
	original, err := os.ReadFile(cfg.OtherPostFile)
	require.NoError(t, err)

	post := testutil.RawResponses(t, testutil.IDs("s", 25), 0)
	responses, err := NewResponses(nil, nil, post)
	require.NoError(t, err)

	run := func() (*Result, [2][]byte) {
		c := cfg
		c.OutDir = t.TempDir()
		res, err := GenerateGraph(context.Background(), c, testutil.Weights(), responses)
		require.NoError(t, err)
		var images [2][]byte
		for i, p := range []string{res.FactorsImage, res.QuestionsImage} {
			images[i], err = os.ReadFile(p)
			require.NoError(t, err)
		}
		return res, images
	}
	first, imagesA := run()
	_, imagesB := run()

	assert.Equal(t, imagesA, imagesB)
	assert.Nil(t, first.Pre)
	assert.Nil(t, first.Mid)
	assert.False(t, first.Persisted)
	assert.Equal(t, 25, first.Post.Valid)
	assert.Len(t, first.LongForm, 25+50+50)

	current, err := os.ReadFile(cfg.OtherPostFile)
	require.NoError(t, err)
	assert.Equal(t, original, current, "POST-only runs leave the reference data untouched")
}

func TestGenerateGraphZeroMatches(t *testing.T) {
	cfg := fixture(t)
	responses, err := NewResponses(
		testutil.RawResponses(t, testutil.IDs("a", 5), 0),
		nil,
		testutil.RawResponses(t, testutil.IDs("b", 5), 0),
	)
	require.NoError(t, err)

	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), responses)
	require.NoError(t, err)
	assert.Zero(t, res.Pre.Valid)
	assert.Zero(t, res.Post.Valid)
	assert.Zero(t, res.Post.Cleaned.Len())
	assert.Len(t, res.LongForm, 100)
	assert.FileExists(t, res.FactorsImage)
	assert.FileExists(t, res.QuestionsImage)
	assert.Equal(t, 60, readTable(t, cfg.OtherPreFile).Len())
}

func TestGenerateGraphWorkbook(t *testing.T) {
	cfg := fixture(t)
	cfg.WorkbookFile = filepath.Join(cfg.OutDir, "summary.xlsx")
	responses, err := NewResponses(nil, nil, testutil.RawResponses(t, testutil.IDs("s", 6), 0))
	require.NoError(t, err)

	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), responses)
	require.NoError(t, err)
	assert.Equal(t, cfg.WorkbookFile, res.Workbook)
	assert.FileExists(t, cfg.WorkbookFile)
}

// blankCell returns tbl with the cell at row i and column col emptied.
func blankCell(t *testing.T, tbl *table.Table, i int, col string) *table.Table {
	t.Helper()
	values := make([]string, tbl.Len())
	for j := range values {
		values[j] = tbl.Value(j, col)
	}
	values[i] = ""
	out, err := tbl.WithValues(col, values)
	require.NoError(t, err)
	return out
}

func TestGenerateGraphSkipsBlankReferenceScores(t *testing.T) {
	cfg := fixture(t)
	post := readTable(t, cfg.OtherPostFile)
	post = blankCell(t, post, 0, string(model.ScaleTotal))
	post = blankCell(t, post, 1, "Q1Bs")
	require.NoError(t, post.WriteFile(cfg.OtherPostFile))
	original, err := os.ReadFile(cfg.OtherPostFile)
	require.NoError(t, err)
	cfg.WorkbookFile = filepath.Join(cfg.OutDir, "summary.xlsx")

	responses, err := NewResponses(nil, nil, testutil.RawResponses(t, testutil.IDs("s", 6), 0))
	require.NoError(t, err)
	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), responses)
	require.NoError(t, err)

	assert.Equal(t, 48, res.NOther)
	assert.Equal(t, 48, countRows(res.LongForm, model.SourceOther, model.StagePost))
	assert.Equal(t, 50, countRows(res.LongForm, model.SourceOther, model.StagePre))
	for i, r := range res.LongForm {
		for _, s := range model.Scales {
			assert.False(t, math.IsNaN(r.Value(s)), "row %d %s", i, s)
		}
		for k, v := range r.Items {
			assert.False(t, math.IsNaN(v), "row %d item %d", i, k)
		}
	}
	assert.FileExists(t, res.Workbook)

	current, err := os.ReadFile(cfg.OtherPostFile)
	require.NoError(t, err)
	assert.Equal(t, original, current)
}

type recordingMatcher struct {
	calls  int
	stages []model.Stage
}

func (m *recordingMatcher) Match(ctx context.Context, raw map[model.Stage]*table.Table) (map[model.Stage]matching.Matched, error) {
	m.calls++
	out := make(map[model.Stage]matching.Matched, len(raw))
	for s, t := range raw {
		m.stages = append(m.stages, s)
		out[s] = matching.Matched{Stage: s, Count: t.Len(), Table: t}
	}
	return out, nil
}

func TestGenerateGraphUsesInjectedMatcher(t *testing.T) {
	cfg := fixture(t)
	post := testutil.RawResponses(t, testutil.IDs("s", 4), 0)
	m := &recordingMatcher{}

	res, err := GenerateGraph(context.Background(), cfg, testutil.Weights(), PostOnly{Post: post}, WithMatcher(m))
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
	assert.Equal(t, []model.Stage{model.StagePost}, m.stages)
	assert.Equal(t, 4, res.Post.Valid)
}

func TestGenerateGraphErrors(t *testing.T) {
	ctx := context.Background()
	post := testutil.RawResponses(t, testutil.IDs("s", 4), 0)

	t.Run("missing reference file", func(t *testing.T) {
		cfg := fixture(t)
		cfg.OtherPreFile = filepath.Join(cfg.OutDir, "missing.csv")
		_, err := GenerateGraph(ctx, cfg, testutil.Weights(), PostOnly{Post: post})
		assert.ErrorIs(t, err, fs.ErrNotExist)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := fixture(t)
		cfg.Level = ""
		_, err := GenerateGraph(ctx, cfg, testutil.Weights(), PostOnly{Post: post})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "level")
	})

	t.Run("no weights", func(t *testing.T) {
		_, err := GenerateGraph(ctx, fixture(t), nil, PostOnly{Post: post})
		assert.Error(t, err)
	})

	t.Run("nil responses", func(t *testing.T) {
		_, err := GenerateGraph(ctx, fixture(t), testutil.Weights(), nil)
		assert.ErrorIs(t, err, ErrUnsupportedStages)
	})

	t.Run("reference file with unknown column fails on append", func(t *testing.T) {
		cfg := fixture(t)
		ref := readTable(t, cfg.OtherPreFile).With("Extra", "x")
		testutil.WriteTable(t, filepath.Dir(cfg.OtherPreFile), filepath.Base(cfg.OtherPreFile), ref)
		before, err := os.ReadFile(cfg.OtherPostFile)
		require.NoError(t, err)

		ids := testutil.IDs("s", 6)
		_, err = GenerateGraph(ctx, cfg, testutil.Weights(), PrePost{
			Pre:  testutil.RawResponses(t, ids, 0),
			Post: testutil.RawResponses(t, ids, 1),
		})
		assert.ErrorIs(t, err, table.ErrSchemaMismatch)

		after, err := os.ReadFile(cfg.OtherPostFile)
		require.NoError(t, err)
		assert.Equal(t, before, after, "nothing is written when the append fails")
	})
}

func TestNewResponses(t *testing.T) {
	tbl := testutil.RawResponses(t, testutil.IDs("s", 1), 0)

	tests := []struct {
		name           string
		pre, mid, post *table.Table
		want           model.Shape
		wantErr        bool
	}{
		{name: "post only", post: tbl, want: model.ShapePostOnly},
		{name: "pre and post", pre: tbl, post: tbl, want: model.ShapePrePost},
		{name: "all stages", pre: tbl, mid: tbl, post: tbl, want: model.ShapePreMidPost},
		{name: "mid without pre", mid: tbl, post: tbl, wantErr: true},
		{name: "no post", pre: tbl, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewResponses(tt.pre, tt.mid, tt.post)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedStages)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Shape())
		})
	}
}

func TestValidateConfig(t *testing.T) {
	err := ValidateConfig(model.ReportConfig{Level: "Intro"})
	require.Error(t, err)
	for _, field := range []string{"other_pre", "other_post", "class_id"} {
		assert.Contains(t, err.Error(), field)
	}
	assert.NotContains(t, err.Error(), "config level")

	assert.NoError(t, ValidateConfig(model.ReportConfig{
		OtherPreFile: "a.csv", OtherPostFile: "b.csv", Level: "Intro", ClassID: "c",
	}))
}
