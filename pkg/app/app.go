// Package app wires the configured components together for the commands.
package app

import (
	"context"
	"fmt"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/internal/llm"
	"github.com/RogWilco/jacob/internal/llmtypes"
	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/board"
	"github.com/RogWilco/jacob/pkg/config"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/logger"
	"github.com/RogWilco/jacob/pkg/queue"
	"github.com/RogWilco/jacob/pkg/snapshot"
	"github.com/RogWilco/jacob/pkg/todos"
	"github.com/RogWilco/jacob/pkg/tracker"
	"github.com/RogWilco/jacob/pkg/utils"
)

// App holds the long-lived components shared by the server and the CLI.
type App struct {
	Config       config.Config
	Logger       utils.ExtendedLogger
	DB           database.Database
	Events       *events.Recorder
	Orchestrator *todos.Orchestrator
	Researcher   *agents.Researcher
	Evaluator    *agents.Evaluator
	Queue        *queue.Queue
}

// Overrides replace collaborators, mainly for tests.
type Overrides struct {
	Model     llmtypes.Model
	Counter   llm.TokenCounter
	Tracker   tracker.Tracker
	Snapshots snapshot.Provider
	Linker    board.Linker
}

// NewLogger builds the process logger from the log settings of cfg.
func NewLogger(cfg config.Config) (logger.Logger, error) {
	level := cfg.LogLevel
	if cfg.Debug {
		level = "debug"
	}
	return logger.CreateLogger(cfg.LogFile, level, cfg.LogFormat, true)
}

// New opens the database and builds every component from cfg.
func New(ctx context.Context, cfg config.Config, logger utils.ExtendedLogger, ov Overrides) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewSQLiteDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}

	model := ov.Model
	modelID := cfg.Model
	if modelID == "" {
		modelID = llm.GetDefaultModel(llm.Provider(cfg.Provider))
	}
	if model == nil {
		model, err = llm.InitializeLLM(llm.Config{
			Provider: llm.Provider(cfg.Provider),
			ModelID:  modelID,
			APIKey:   cfg.APIKey(),
			Logger:   logger,
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	var counter llm.TokenCounter = llm.NewTiktokenCounter(modelID)
	if ov.Counter != nil {
		counter = ov.Counter
	}
	client := llm.NewClient(model, modelID, llm.DefaultProfiles(), counter, logger)
	recorder := events.NewRecorder(db, logger)
	deps := agents.Deps{
		DB:        db,
		Extractor: extract.New(client, logger),
		Events:    recorder,
		Logger:    logger,
	}

	tr := ov.Tracker
	if tr == nil {
		tr = tracker.NewGitHub(logger)
	}
	snaps := ov.Snapshots
	if snaps == nil {
		snaps = snapshot.NewGitCloner(cfg.SnapshotDir, logger)
	}
	linker := ov.Linker
	if linker == nil {
		linker = board.NewJiraLinker(cfg.JiraAPIBase, nil, logger)
	}

	q := queue.New(db, logger)
	if cfg.QueueRetryDelay > 0 {
		q.RetryDelay = cfg.QueueRetryDelay
	}

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		Events:       recorder,
		Orchestrator: todos.NewOrchestrator(deps, tr, snaps, todos.WithBoardLinker(linker, cfg.AppURL)),
		Researcher:   agents.NewResearcher(deps),
		Evaluator:    agents.NewEvaluator(deps),
		Queue:        q,
	}, nil
}

// Pool builds a worker pool over the app's queue and orchestrator.
func (a *App) Pool(stopWhenIdle bool) *queue.Pool {
	return queue.NewPool(a.Queue, a.Orchestrator, queue.PoolConfig{
		Workers:      a.Config.QueueWorkers,
		PollInterval: a.Config.QueuePoll,
		Credential:   a.Config.GitHubToken,
		StopWhenIdle: stopWhenIdle,
	}, a.Logger)
}

func (a *App) Close() error {
	return a.DB.Close()
}
