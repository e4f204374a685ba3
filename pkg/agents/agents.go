// Package agents generates and persists the research, plans and
// evaluations attached to todos.
//
// Every generator follows the same shape: return persisted state when it
// exists, otherwise build context, extract a validated value from the
// model, persist it and return what was stored. Persistence only inserts
// into an empty scope, so concurrent callers converge on one result.
package agents

import (
	"errors"
	"fmt"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/sourcemap"
	"github.com/RogWilco/jacob/pkg/utils"
)

// ErrNoSource is returned when neither a source map nor a checkout is available.
var ErrNoSource = errors.New("no source map or repository path supplied")

// Deps are shared by all agents.
type Deps struct {
	DB        database.Database
	Extractor *extract.Extractor
	Events    *events.Recorder
	Logger    utils.ExtendedLogger
}

// SourceMap returns supplied when set, otherwise builds the map of root
// honouring its repository settings.
func SourceMap(root, supplied string) (string, error) {
	if supplied != "" {
		return supplied, nil
	}
	if root == "" {
		return "", ErrNoSource
	}
	settings, err := sourcemap.LoadRepoSettings(root)
	if err != nil {
		return "", err
	}
	sm, err := sourcemap.Build(root, settings)
	if err != nil {
		return "", fmt.Errorf("failed to build source map: %w", err)
	}
	return sm, nil
}
