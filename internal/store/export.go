package store

import (
	"fmt"

	"github.com/pavelanni/surveygraph/internal/model"
)

// ExportRuns builds the history document printed by the history command.
func (s *Store) ExportRuns(database string) (model.RunHistory, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return model.RunHistory{}, fmt.Errorf("list runs: %w", err)
	}
	if runs == nil {
		runs = []model.RunRecord{}
	}
	return model.RunHistory{Database: database, Runs: runs}, nil
}
