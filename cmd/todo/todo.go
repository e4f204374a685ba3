package todo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/RogWilco/jacob/pkg/app"
	"github.com/RogWilco/jacob/pkg/config"
	"github.com/RogWilco/jacob/pkg/database"
)

// TodoCmd groups the todo subcommands.
var TodoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Create, import and manage todos from the command line",
	Long: `Work with todos without running the API server.

Examples:
  jacob todo create --repo acme/api --issue 42 --agent
  jacob todo import --repo acme/api --issues 1,2,3
  jacob todo start --todo 7
  jacob todo export --project 1 --out todos.yaml --format yaml`,
}

func init() {
	TodoCmd.AddCommand(createCmd)
	TodoCmd.AddCommand(importCmd)
	TodoCmd.AddCommand(archiveCmd)
	TodoCmd.AddCommand(startCmd)
	TodoCmd.AddCommand(evaluateCmd)
	TodoCmd.AddCommand(exportCmd)
}

// openApp builds the application from the current configuration. The
// returned cleanup closes the database and the log file.
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg := config.Load()
	log, err := app.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := app.New(ctx, cfg, log, app.Overrides{})
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		log.Close()
	}, nil
}

// openDB opens only the database, for commands that never call a model.
func openDB(ctx context.Context) (*database.SQLiteDB, error) {
	return database.NewSQLiteDB(ctx, config.Load().DBPath)
}

// resolveProject finds the project by id, or by repo name, creating it
// when only a repo is given.
func resolveProject(ctx context.Context, db database.Database, repo string, projectID int64) (*database.Project, error) {
	if projectID > 0 {
		return db.GetProject(ctx, projectID)
	}
	if repo == "" {
		return nil, errors.New("either --project or --repo is required")
	}
	p, err := db.GetProjectByRepo(ctx, repo)
	if errors.Is(err, database.ErrNotFound) {
		return db.CreateProject(ctx, repo)
	}
	return p, err
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
