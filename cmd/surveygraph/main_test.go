package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
	"github.com/pavelanni/surveygraph/internal/testutil"
)

func writeWeights(t *testing.T, dir string) string {
	t.Helper()
	w := testutil.Weights()
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, table.FormatFloat(w[k])}
	}
	tbl, err := table.New([]string{"Choice", "Weight"}, rows)
	require.NoError(t, err)
	return testutil.WriteTable(t, dir, "weights.csv", tbl)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestReportAndHistory(t *testing.T) {
	dir := t.TempDir()
	otherPre := testutil.WriteTable(t, dir, "other_pre.csv", testutil.Reference(t, 1, 30, "Intro"))
	otherPost := testutil.WriteTable(t, dir, "other_post.csv", testutil.Reference(t, 2, 30, "Intro"))
	ids := testutil.IDs("s", 8)
	pre := testutil.WriteTable(t, dir, "pre.csv", testutil.RawResponses(t, ids, 0))
	post := testutil.WriteTable(t, dir, "post.csv", testutil.RawResponses(t, ids, 1))
	db := filepath.Join(dir, "ledger.db")

	args := []string{"report",
		"--other-pre", otherPre, "--other-post", otherPost,
		"--level", "Intro", "--class-id", "phys-101",
		"--weights", writeWeights(t, dir),
		"--pre", pre, "--post", post,
		"--out-dir", filepath.Join(dir, "out"),
		"--db", db, "--log-level", "error",
	}
	out := run(t, args...)
	assert.Contains(t, out, "8 students matched.")
	assert.FileExists(t, filepath.Join(dir, "out", "FactorsLevel.png"))
	assert.FileExists(t, filepath.Join(dir, "out", "QuestionsLevel.png"))

	ref, err := table.ReadFile(otherPost)
	require.NoError(t, err)
	assert.Equal(t, 38, ref.Len())

	historyPath := filepath.Join(dir, "history.json")
	run(t, "history", "--db", db, "--output", historyPath, "--log-level", "error")
	data, err := os.ReadFile(historyPath)
	require.NoError(t, err)

	var history model.RunHistory
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history.Runs, 1)
	r := history.Runs[0]
	assert.Equal(t, "phys-101", r.ClassID)
	assert.Equal(t, model.ShapePrePost, r.Shape)
	assert.Equal(t, 8, r.ValidPre)
	assert.Equal(t, 8, r.ValidPost)
	assert.Equal(t, 30, r.NOther)
	assert.True(t, r.Persisted)
	assert.Len(t, r.InputHash, 64)
}

func TestReportRejectsMidWithoutPre(t *testing.T) {
	dir := t.TempDir()
	ids := testutil.IDs("s", 3)
	raw := testutil.WriteTable(t, dir, "raw.csv", testutil.RawResponses(t, ids, 0))

	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"report",
		"--other-pre", "a.csv", "--other-post", "b.csv",
		"--level", "Intro", "--class-id", "c",
		"--weights", writeWeights(t, dir),
		"--mid", raw, "--post", raw,
		"--out-dir", dir, "--db", "", "--log-level", "error",
	})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MID responses need PRE responses")
}

func TestHashFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(a, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("y"), 0o644))

	h1, err := hashFiles(a, b)
	require.NoError(t, err)
	h2, err := hashFiles(a, b)
	require.NoError(t, err)
	h3, err := hashFiles(b, a)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)

	_, err = hashFiles(filepath.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
