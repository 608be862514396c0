package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	appI18n "github.com/pavelanni/surveygraph/internal/i18n"
	"github.com/pavelanni/surveygraph/internal/matching"
	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/report"
	"github.com/pavelanni/surveygraph/internal/scoring"
	"github.com/pavelanni/surveygraph/internal/store"
	"github.com/pavelanni/surveygraph/internal/table"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "surveygraph",
		Short: "Compare a class's survey scores with earlier classes",
	}

	rep := reportCmd()
	root.AddCommand(rep, historyCmd())

	// Make "report" the default when no subcommand is given.
	root.RunE = rep.RunE

	// Register report flags on root so bare `surveygraph --post ...` still works.
	root.Flags().AddFlagSet(rep.Flags())

	return root
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Score a class, render comparison charts and update the reference data",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.String("other-pre", "", "Reference PRE scores CSV (updated when --pre is given)")
	f.String("other-post", "", "Reference POST scores CSV (updated when --pre is given)")
	f.String("level", "", "Course level to compare against (e.g. Intro, BFY)")
	f.String("class-id", "", "Identifier stamped on the class's rows")
	f.StringP("weights", "w", "weights.csv", "Choice weights CSV (Choice,Weight)")
	f.String("pre", "", "Class PRE responses CSV")
	f.String("mid", "", "Class MID responses CSV (requires --pre)")
	f.String("post", "", "Class POST responses CSV")
	f.StringP("out-dir", "o", ".", "Directory for the chart images")
	f.String("workbook", "", "Also write a summary workbook to this .xlsx path")
	f.StringP("lang", "l", "en", "Chart language (en, ru)")
	f.String("db", "surveygraph.db", "SQLite run ledger path (empty disables the ledger)")
	f.Int("min-answered", matching.DefaultMinAnswered, "Minimum answered items for a valid response")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded report runs as JSON",
		RunE:  runHistory,
	}
	f := cmd.Flags()
	f.String("db", "surveygraph.db", "SQLite run ledger path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("SURVEYGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("surveygraph")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/surveygraph")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runReport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = appI18n.WithLanguage(ctx, lang)

	cfg := model.ReportConfig{
		OtherPreFile:  v.GetString("other-pre"),
		OtherPostFile: v.GetString("other-post"),
		Level:         v.GetString("level"),
		ClassID:       v.GetString("class-id"),
		OutDir:        v.GetString("out-dir"),
		WorkbookFile:  v.GetString("workbook"),
	}
	if err := report.ValidateConfig(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	weightsPath := v.GetString("weights")
	weights, err := scoring.LoadWeights(weightsPath)
	if err != nil {
		return err
	}

	inputs := []string{weightsPath}
	tables := make(map[model.Stage]*table.Table)
	for _, s := range model.StageOrder {
		path := v.GetString(strings.ToLower(string(s)))
		if path == "" {
			continue
		}
		t, err := table.ReadFile(path)
		if err != nil {
			return fmt.Errorf("load %s responses: %w", s, err)
		}
		tables[s] = t
		inputs = append(inputs, path)
	}
	responses, err := report.NewResponses(tables[model.StagePre], tables[model.StageMid], tables[model.StagePost])
	if err != nil {
		return err
	}
	hash, err := hashFiles(inputs...)
	if err != nil {
		return err
	}

	var db *store.Store
	if dbPath := v.GetString("db"); dbPath != "" {
		if db, err = store.New(dbPath); err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := checkLedger(db, cfg, responses, hash); err != nil {
			return err
		}
	}

	res, err := report.GenerateGraph(ctx, cfg, weights, responses,
		report.WithMatcher(matching.New(v.GetInt("min-answered"))))
	if err != nil {
		return err
	}

	if db != nil {
		if err := recordRun(db, cfg, res, hash); err != nil {
			return err
		}
	}

	slog.Info("report complete",
		"class_id", cfg.ClassID,
		"level", cfg.Level,
		"shape", res.Shape,
		"n_other", res.NOther,
		"factors", res.FactorsImage,
		"questions", res.QuestionsImage,
		"persisted", res.Persisted,
	)
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Tp(ctx, "StudentsMatched", res.Post.Valid))
	return nil
}

// checkLedger warns when the same inputs were already appended to the reference data,
// or when a reference file changed since the last run wrote it. Neither blocks the run.
func checkLedger(db *store.Store, cfg model.ReportConfig, responses report.Responses, hash string) error {
	if responses.Shape() == model.ShapePostOnly {
		return nil
	}
	prev, err := db.FindPersistedByHash(hash)
	if err != nil {
		return fmt.Errorf("check run ledger: %w", err)
	}
	if prev != nil {
		slog.Warn("these responses were already added to the reference data; they will be counted twice",
			"previous_run", prev.ID, "previous_class_id", prev.ClassID, "at", prev.CreatedAt)
	}
	for _, path := range []string{cfg.OtherPreFile, cfg.OtherPostFile} {
		stored, err := db.GetReferenceHash(path)
		if err != nil {
			return fmt.Errorf("check reference hash for %s: %w", path, err)
		}
		if stored == "" {
			continue
		}
		current, err := hashFiles(path)
		if err != nil {
			return err
		}
		if current != stored {
			slog.Warn("reference file changed since the last run wrote it", "path", path)
		}
	}
	return nil
}

func recordRun(db *store.Store, cfg model.ReportConfig, res *report.Result, hash string) error {
	rec := model.RunRecord{
		ID:        uuid.NewString(),
		ClassID:   cfg.ClassID,
		Level:     cfg.Level,
		Shape:     res.Shape,
		ValidPost: res.Post.Valid,
		NOther:    res.NOther,
		Persisted: res.Persisted,
		InputHash: hash,
	}
	if res.Pre != nil {
		rec.ValidPre = res.Pre.Valid
	}
	if res.Mid != nil {
		rec.ValidMid = res.Mid.Valid
	}
	if err := db.RecordRun(rec); err != nil {
		return err
	}
	if !res.Persisted {
		return nil
	}
	for _, path := range []string{cfg.OtherPreFile, cfg.OtherPostFile} {
		h, err := hashFiles(path)
		if err != nil {
			return err
		}
		if err := db.SetReferenceHash(path, h); err != nil {
			return fmt.Errorf("record reference hash for %s: %w", path, err)
		}
	}
	slog.Debug("recorded run", "id", rec.ID)
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	dbPath := v.GetString("db")
	if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("run ledger %s does not exist", dbPath)
	}
	db, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	history, err := db.ExportRuns(dbPath)
	if err != nil {
		return fmt.Errorf("export runs: %w", err)
	}

	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// hashFiles returns the SHA-256 of the concatenated contents of paths.
func hashFiles(paths ...string) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", p, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", p, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
