// Package todos turns tracked issues into todos and drives them through
// their lifecycle.
package todos

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/board"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/snapshot"
	"github.com/RogWilco/jacob/pkg/sourcemap"
	"github.com/RogWilco/jacob/pkg/tracker"
	"github.com/RogWilco/jacob/pkg/utils"
)

// BotMention is appended to an issue body to hand it to the coding agent.
const BotMention = "@jacob-ai-bot"

const defaultTodoName = "New Todo"

var (
	ErrInvalidRepo       = errors.New("invalid repo name")
	ErrMissingCredential = errors.New("access token is required")
	ErrNoIssue           = errors.New("todo is not linked to an issue")
	ErrInvalidTransition = errors.New("invalid todo status transition")
)

// Outcome tags the result of GetOrCreate.
type Outcome int

const (
	Created Outcome = iota
	AlreadyExists
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// CreateParams describes one issue to turn into a todo. RootPath and
// SourceMap are optional; a RootPath skips the checkout.
type CreateParams struct {
	Repo         string
	ProjectID    int64
	IssueNumber  int
	Credential   string
	RootPath     string
	SourceMap    string
	AgentEnabled bool
	RepoSettings *sourcemap.RepoSettings
}

// CreateResult is Created or AlreadyExists with Todo set, or Failed with
// Err set. Todo is also set on Failed when the row was stored before a
// later stage failed.
type CreateResult struct {
	Outcome Outcome
	Todo    *database.Todo
	Err     error
}

// Orchestrator owns todo creation and lifecycle transitions.
type Orchestrator struct {
	deps       agents.Deps
	tracker    tracker.Tracker
	snapshots  snapshot.Provider
	linker     board.Linker
	researcher *agents.Researcher
	planner    *agents.Planner
	appURL     string
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

// WithBoardLinker enables board back-links to todos under appURL.
func WithBoardLinker(l board.Linker, appURL string) Option {
	return func(o *Orchestrator) {
		o.linker = l
		o.appURL = appURL
	}
}

func NewOrchestrator(deps agents.Deps, tr tracker.Tracker, snapshots snapshot.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:       deps,
		tracker:    tr,
		snapshots:  snapshots,
		researcher: agents.NewResearcher(deps),
		planner:    agents.NewPlanner(deps),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetOrCreate returns the todo of an issue, creating it when absent. It
// never panics and never returns a bare error: failures come back as a
// Failed result after being logged with the issue identity.
func (o *Orchestrator) GetOrCreate(ctx context.Context, p CreateParams) (res CreateResult) {
	log := o.deps.Logger.WithFields(utils.IssueFields(p.ProjectID, p.IssueNumber)).WithField("repo", p.Repo)
	defer func() {
		if r := recover(); r != nil {
			res = o.fail(ctx, log, p, res.Todo, fmt.Errorf("panic while creating todo: %v", r))
		}
	}()

	if _, _, err := snapshot.SplitRepo(p.Repo); err != nil {
		return o.fail(ctx, log, p, nil, fmt.Errorf("%w: %q", ErrInvalidRepo, p.Repo))
	}
	if p.Credential == "" {
		return o.fail(ctx, log, p, nil, ErrMissingCredential)
	}

	existing, err := o.deps.DB.FindTodoByIssue(ctx, p.ProjectID, int64(p.IssueNumber))
	if err == nil {
		return o.handleExisting(ctx, log, p, existing)
	}
	if !errors.Is(err, database.ErrNotFound) {
		return o.fail(ctx, log, p, nil, err)
	}

	issue, err := o.tracker.GetIssue(ctx, p.Credential, p.Repo, p.IssueNumber)
	if err != nil {
		return o.fail(ctx, log, p, nil, err)
	}

	acquired := false
	err = snapshot.With(ctx, o.snapshots, p.Repo, p.Credential, p.RootPath, func(root string) error {
		acquired = true
		res = o.create(ctx, log, p, issue, root)
		return res.Err
	})
	switch {
	case !acquired:
		return o.fail(ctx, log, p, nil, err)
	case res.Err != nil:
		return o.fail(ctx, log, p, res.Todo, res.Err)
	case err != nil:
		log.WithError(err).Warn("failed to release repository snapshot")
	}
	return res
}

// handleExisting returns AlreadyExists for a stored todo. When agents are enabled
// and a stage never completed, for example after a failed run, the missing
// stages are run again under a fresh snapshot. Stored stages are reused.
func (o *Orchestrator) handleExisting(ctx context.Context, log *logrus.Entry, p CreateParams, todo *database.Todo) CreateResult {
	if p.AgentEnabled {
		pending, err := o.agentsPending(ctx, p, todo)
		if err != nil {
			return o.fail(ctx, log, p, todo, err)
		}
		if pending {
			return o.resume(ctx, log, p, todo)
		}
	}
	log.Infof("todo for issue #%d already exists", p.IssueNumber)
	o.record(ctx, p, todo, events.TodoExists, events.TodoPayload{Name: todo.Name})
	return CreateResult{Outcome: AlreadyExists, Todo: todo}
}

// agentsPending reports whether the issue research, the plan or the
// project research of todo is still missing.
func (o *Orchestrator) agentsPending(ctx context.Context, p CreateParams, todo *database.Todo) (bool, error) {
	issueID := int64(p.IssueNumber)
	research, err := o.deps.DB.ListResearch(ctx, database.ResearchScope{TodoID: todo.ID, IssueID: issueID, ProjectID: p.ProjectID})
	if err != nil {
		return false, err
	}
	steps, err := o.deps.DB.ListPlanSteps(ctx, p.ProjectID, issueID)
	if err != nil {
		return false, err
	}
	projectResearch, err := o.deps.DB.ListResearch(ctx, database.ProjectScope(p.ProjectID))
	if err != nil {
		return false, err
	}
	return len(research) == 0 || len(steps) == 0 || len(projectResearch) == 0, nil
}

func (o *Orchestrator) resume(ctx context.Context, log *logrus.Entry, p CreateParams, todo *database.Todo) CreateResult {
	log = log.WithField("todo_id", todo.ID)
	log.Infof("resuming agent stages for todo %d", todo.ID)

	issue, err := o.tracker.GetIssue(ctx, p.Credential, p.Repo, p.IssueNumber)
	if err != nil {
		return o.fail(ctx, log, p, todo, err)
	}
	acquired := false
	var stageErr error
	err = snapshot.With(ctx, o.snapshots, p.Repo, p.Credential, p.RootPath, func(root string) error {
		acquired = true
		settings, sm, err := o.prepare(p, root)
		if err == nil {
			err = o.runAgents(ctx, p, settings, root, sm, issue, todo)
		}
		stageErr = err
		return err
	})
	switch {
	case !acquired:
		return o.fail(ctx, log, p, todo, err)
	case stageErr != nil:
		return o.fail(ctx, log, p, todo, stageErr)
	case err != nil:
		log.WithError(err).Warn("failed to release repository snapshot")
	}
	o.record(ctx, p, todo, events.TodoExists, events.TodoPayload{Name: todo.Name, Status: string(todo.Status)})
	return CreateResult{Outcome: AlreadyExists, Todo: todo}
}

// prepare loads the repository settings and the source map for root.
func (o *Orchestrator) prepare(p CreateParams, root string) (sourcemap.RepoSettings, string, error) {
	settings, err := o.repoSettings(p, root)
	if err != nil {
		return settings, "", err
	}
	sm := p.SourceMap
	if sm == "" {
		if sm, err = sourcemap.Build(root, settings); err != nil {
			return settings, "", fmt.Errorf("failed to build source map: %w", err)
		}
	}
	return settings, sm, nil
}

func (o *Orchestrator) create(ctx context.Context, log *logrus.Entry, p CreateParams, issue *tracker.Issue, root string) CreateResult {
	settings, sm, err := o.prepare(p, root)
	if err != nil {
		return CreateResult{Outcome: Failed, Err: err}
	}

	issueText := issue.Text()
	extracted, err := agents.ExtractIssue(ctx, o.deps.Extractor, sm, issueText)
	if err != nil {
		return CreateResult{Outcome: Failed, Err: err}
	}

	ib, boardIssue := o.findBoardIssue(ctx, log, p, issue)

	newTodo := database.NewTodo{
		ProjectID:   p.ProjectID,
		IssueID:     int64Ptr(int64(issue.Number)),
		Name:        todoName(extracted.CommitTitle, issue.Title),
		Description: issueText,
		Status:      database.TodoStatusTodo,
		Position:    issue.Number,
	}
	if boardIssue != nil {
		newTodo.OriginalIssueID = int64Ptr(boardIssue.ID)
	}

	todo, err := o.deps.DB.InsertTodo(ctx, newTodo)
	if errors.Is(err, database.ErrDuplicate) {
		existing, rerr := o.deps.DB.FindTodoByIssue(ctx, p.ProjectID, int64(issue.Number))
		if rerr != nil {
			return CreateResult{Outcome: Failed, Err: fmt.Errorf("re-read after duplicate insert: %w", rerr)}
		}
		log.Infof("todo for issue #%d was created concurrently", issue.Number)
		o.record(ctx, p, existing, events.TodoExists, events.TodoPayload{Name: existing.Name})
		return CreateResult{Outcome: AlreadyExists, Todo: existing}
	}
	if err != nil {
		return CreateResult{Outcome: Failed, Err: err}
	}
	o.record(ctx, p, todo, events.TodoCreated, events.TodoPayload{Name: todo.Name, Status: string(todo.Status)})

	if boardIssue != nil {
		o.linkBoard(ctx, log, p, ib, boardIssue, todo)
	}

	if p.AgentEnabled {
		if err := o.runAgents(ctx, p, settings, root, sm, issue, todo); err != nil {
			return CreateResult{Outcome: Failed, Todo: todo, Err: err}
		}
	} else {
		log.Infof("skipping research for repo %s issue #%d", p.Repo, issue.Number)
	}

	log.Infof("created new todo %d for issue #%d", todo.ID, issue.Number)
	return CreateResult{Outcome: Created, Todo: todo}
}

// runAgents stores codebase context, issue research, the plan and project
// research, in that order.
func (o *Orchestrator) runAgents(ctx context.Context, p CreateParams, settings sourcemap.RepoSettings, root, sm string, issue *tracker.Issue, todo *database.Todo) error {
	files, err := sourcemap.Traverse(root, settings)
	if err != nil {
		return err
	}
	contextItems, err := o.deps.GetOrCreateCodebaseContext(ctx, p.ProjectID, root, files)
	if err != nil {
		return fmt.Errorf("codebase context: %w", err)
	}

	research, err := o.researcher.GetOrCreate(ctx, agents.ResearchInput{
		TodoID:    todo.ID,
		IssueID:   int64(issue.Number),
		ProjectID: p.ProjectID,
		IssueText: issue.Text(),
		RootPath:  root,
		SourceMap: sm,
	})
	if err != nil {
		return fmt.Errorf("research: %w", err)
	}

	if _, err := o.planner.GetOrCreate(ctx, agents.PlanInput{
		ProjectID:   p.ProjectID,
		IssueNumber: int64(issue.Number),
		IssueText:   issue.Text(),
		RootPath:    root,
		SourceMap:   sm,
		Research:    agents.FormatResearch(research),
	}); err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	if _, err := o.researcher.GetOrCreateProjectResearch(ctx, p.ProjectID, contextItems); err != nil {
		return fmt.Errorf("project research: %w", err)
	}
	return nil
}

func (o *Orchestrator) repoSettings(p CreateParams, root string) (sourcemap.RepoSettings, error) {
	if p.RepoSettings != nil {
		return *p.RepoSettings, nil
	}
	if root == "" {
		return sourcemap.RepoSettings{}, nil
	}
	return sourcemap.LoadRepoSettings(root)
}

func (o *Orchestrator) findBoardIssue(ctx context.Context, log *logrus.Entry, p CreateParams, issue *tracker.Issue) (*database.IssueBoard, *database.BoardIssue) {
	ib, err := o.deps.DB.FindIssueBoard(ctx, p.ProjectID, database.IssueBoardSourceJira)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warn("failed to look up issue board")
		}
		return nil, nil
	}
	bi, err := o.deps.DB.FindBoardIssue(ctx, ib.ID, int64(issue.Number), p.Repo)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warn("failed to look up board issue")
		}
		return ib, nil
	}
	return ib, bi
}

// linkBoard posts the todo link to the board issue. Failures are logged only.
func (o *Orchestrator) linkBoard(ctx context.Context, log *logrus.Entry, p CreateParams, ib *database.IssueBoard, bi *database.BoardIssue, todo *database.Todo) {
	if o.linker == nil {
		return
	}
	log = log.WithField("board_issue", bi.IssueID)

	account, err := o.deps.DB.FindAccount(ctx, ib.CreatedBy)
	if err != nil || account.JiraAccessToken == nil || ib.OriginalBoardID == nil {
		log.Errorf("error updating jira ticket %s: jira credentials not found", bi.IssueID)
		return
	}
	project, err := o.deps.DB.GetProject(ctx, p.ProjectID)
	if err != nil || project.JiraCloudID == nil {
		log.Errorf("error updating jira ticket %s: project not found or jira cloud id not set", bi.IssueID)
		return
	}

	err = o.linker.LinkTodo(ctx, board.BoardLink{
		CloudID:     *project.JiraCloudID,
		IssueID:     bi.IssueID,
		AccessToken: *account.JiraAccessToken,
		TodoURL:     board.TodoURL(o.appURL, project.RepoFullName, todo.ID),
	})
	if err != nil {
		log.WithError(err).Errorf("error updating jira ticket %s", bi.IssueID)
	}
}

func (o *Orchestrator) fail(ctx context.Context, log *logrus.Entry, p CreateParams, todo *database.Todo, err error) CreateResult {
	log.WithError(err).Errorf("error while creating todo for issue #%d", p.IssueNumber)
	o.record(ctx, p, todo, events.TodoFailed, events.TodoPayload{Reason: err.Error()})
	return CreateResult{Outcome: Failed, Todo: todo, Err: err}
}

func (o *Orchestrator) record(ctx context.Context, p CreateParams, todo *database.Todo, t events.EventType, payload events.TodoPayload) {
	id := events.Identity{ProjectID: p.ProjectID, IssueID: int64(p.IssueNumber)}
	if todo != nil {
		id.TodoID = &todo.ID
	}
	o.deps.Events.Record(ctx, id, t, payload)
}

func todoName(commitTitle, issueTitle string) string {
	if s := strings.TrimSpace(commitTitle); s != "" {
		return s
	}
	if s := strings.TrimSpace(issueTitle); s != "" {
		return s
	}
	return defaultTodoName
}

func int64Ptr(v int64) *int64 {
	return &v
}
