package report

import (
	"fmt"
	"log/slog"

	"github.com/pavelanni/surveygraph/internal/model"
	"github.com/pavelanni/surveygraph/internal/table"
)

// persist appends the class's scored PRE and POST rows to the reference files and
// rewrites them. Rows are projected onto each file's columns; a reference column the
// class rows lack is an error and nothing is written.
func persist(cfg model.ReportConfig, ref *reference, pre, post *table.Table) error {
	newPre, err := table.Append(ref.pre, pre)
	if err != nil {
		return fmt.Errorf("append to reference PRE data: %w", err)
	}
	newPost, err := table.Append(ref.post, post)
	if err != nil {
		return fmt.Errorf("append to reference POST data: %w", err)
	}
	if err := newPre.WriteFile(cfg.OtherPreFile); err != nil {
		return fmt.Errorf("save reference PRE data: %w", err)
	}
	if err := newPost.WriteFile(cfg.OtherPostFile); err != nil {
		return fmt.Errorf("save reference POST data: %w", err)
	}
	slog.Debug("saved reference data", "pre_rows", newPre.Len(), "post_rows", newPost.Len())
	return nil
}
