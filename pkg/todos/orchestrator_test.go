package todos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/internal/llm"
	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/board"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/logger"
	"github.com/RogWilco/jacob/pkg/snapshot"
	"github.com/RogWilco/jacob/pkg/tracker"
)

const (
	issueJSON    = `{"commitTitle": "Add retry to HTTP client", "stepsToAddressIssue": ["wrap calls"], "filesToUpdate": ["client.go"]}`
	researchJSON = `[{"type": "ResearchCodebase", "question": "Where are HTTP calls made?", "answer": "client.go"}]`
	planJSON     = `[{"type": "EditExistingCode", "title": "Wrap calls", "instructions": "Add a retry loop", "filePath": "client.go"}]`
	projectJSON  = `[{"question": "What does it do?", "answer": "Calls APIs"}]`
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	panicOn   string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicOn != "" && strings.Contains(req.SystemPrompt, f.panicOn) {
		panic("generator exploded")
	}
	for marker, resp := range f.responses {
		if strings.Contains(req.SystemPrompt, marker) {
			return resp, nil
		}
	}
	return "not json", nil
}

type fakeTracker struct {
	mu        sync.Mutex
	issues    map[int]*tracker.Issue
	updates   int
	getErr    error
	updateErr error
}

func (f *fakeTracker) GetIssue(_ context.Context, _, _ string, number int) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	issue, ok := f.issues[number]
	if !ok {
		return nil, tracker.ErrIssueNotFound
	}
	cp := *issue
	return &cp, nil
}

func (f *fakeTracker) UpdateIssue(_ context.Context, _, _ string, number int, u tracker.IssueUpdate) (*tracker.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates++
	issue := f.issues[number]
	if u.Body != nil {
		issue.Body = *u.Body
	}
	if u.Title != nil {
		issue.Title = *u.Title
	}
	cp := *issue
	return &cp, nil
}

// countingProvider hands out real temp checkouts and counts releases.
type countingProvider struct {
	base       string
	acquireErr error
	acquired   atomic.Int32
	released   atomic.Int32
}

func (p *countingProvider) Acquire(context.Context, string, string) (*snapshot.Snapshot, error) {
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	dir, err := os.MkdirTemp(p.base, "snap-")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "client.go"), []byte("package client\n\nfunc Get() error {\n\treturn nil\n}\n"), 0644); err != nil {
		return nil, err
	}
	p.acquired.Add(1)
	return snapshot.New(dir, func() error {
		p.released.Add(1)
		return os.RemoveAll(dir)
	}), nil
}

type fakeLinker struct {
	links []board.BoardLink
	err   error
}

func (f *fakeLinker) LinkTodo(_ context.Context, link board.BoardLink) error {
	f.links = append(f.links, link)
	return f.err
}

type fixture struct {
	db       *database.SQLiteDB
	gen      *fakeGenerator
	tracker  *fakeTracker
	provider *countingProvider
	orch     *Orchestrator
	project  *database.Project
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLiteDB(ctx, filepath.Join(t.TempDir(), "todos.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	project, err := db.CreateProject(ctx, "acme/widgets")
	require.NoError(t, err)

	gen := &fakeGenerator{responses: map[string]string{
		"triaging a GitHub":   issueJSON,
		"research assistant":  researchJSON,
		"implementation plan": planJSON,
		"orientation brief":   projectJSON,
	}}
	tr := &fakeTracker{issues: map[int]*tracker.Issue{
		42: {ID: 9042, Number: 42, Title: "Add retry", Body: "Retry on 429"},
	}}
	provider := &countingProvider{base: t.TempDir()}
	log := logger.CreateTestLogger()
	deps := agents.Deps{
		DB:        db,
		Extractor: extract.New(gen, log),
		Events:    events.NewRecorder(db, log),
		Logger:    log,
	}
	return &fixture{
		db:       db,
		gen:      gen,
		tracker:  tr,
		provider: provider,
		orch:     NewOrchestrator(deps, tr, provider, opts...),
		project:  project,
	}
}

func (f *fixture) params(agentEnabled bool) CreateParams {
	return CreateParams{
		Repo:         "acme/widgets",
		ProjectID:    f.project.ID,
		IssueNumber:  42,
		Credential:   "tok",
		AgentEnabled: agentEnabled,
	}
}

func TestGetOrCreateAgentDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.orch.GetOrCreate(ctx, f.params(false))
	require.NoError(t, res.Err)
	require.Equal(t, Created, res.Outcome)

	todo := res.Todo
	assert.Equal(t, "Add retry to HTTP client", todo.Name)
	assert.Equal(t, "Add retry\nRetry on 429", todo.Description)
	assert.Equal(t, database.TodoStatusTodo, todo.Status)
	assert.Equal(t, 42, todo.Position)
	require.NotNil(t, todo.IssueID)
	assert.Equal(t, int64(42), *todo.IssueID)

	research, err := f.db.ListResearch(ctx, database.ResearchScope{TodoID: todo.ID, IssueID: 42, ProjectID: f.project.ID})
	require.NoError(t, err)
	assert.Empty(t, research)
	steps, err := f.db.ListPlanSteps(ctx, f.project.ID, 42)
	require.NoError(t, err)
	assert.Empty(t, steps)

	assert.EqualValues(t, 1, f.provider.acquired.Load())
	assert.EqualValues(t, 1, f.provider.released.Load())
}

func TestGetOrCreateAgentEnabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res := f.orch.GetOrCreate(ctx, f.params(true))
	require.NoError(t, res.Err)
	require.Equal(t, Created, res.Outcome)

	research, err := f.db.ListResearch(ctx, database.ResearchScope{TodoID: res.Todo.ID, IssueID: 42, ProjectID: f.project.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, research)

	steps, err := f.db.ListPlanSteps(ctx, f.project.ID, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, steps)

	projectResearch, err := f.db.ListResearch(ctx, database.ProjectScope(f.project.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, projectResearch)

	stored, err := f.db.ListCodebaseContext(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "client.go", stored[0].FilePath)

	assert.EqualValues(t, 1, f.provider.released.Load())
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.orch.GetOrCreate(ctx, f.params(false))
	require.Equal(t, Created, first.Outcome)

	second := f.orch.GetOrCreate(ctx, f.params(false))
	require.Equal(t, AlreadyExists, second.Outcome)
	assert.Equal(t, first.Todo.ID, second.Todo.ID)
	assert.Equal(t, first.Todo.Name, second.Todo.Name)

	// the second call has no side effects
	assert.EqualValues(t, 1, f.provider.acquired.Load())

	all, err := f.db.ListTodos(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetOrCreateConcurrentCallsYieldOneTodo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const callers = 6
	results := make([]CreateResult, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.orch.GetOrCreate(ctx, f.params(false))
		}()
	}
	wg.Wait()

	all, err := f.db.ListTodos(ctx, f.project.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)

	created := 0
	for _, res := range results {
		require.NoError(t, res.Err)
		require.NotNil(t, res.Todo)
		assert.Equal(t, all[0].ID, res.Todo.ID)
		if res.Outcome == Created {
			created++
		} else {
			assert.Equal(t, AlreadyExists, res.Outcome)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, f.provider.acquired.Load(), f.provider.released.Load())
}

func TestGetOrCreateResumesFailedAgentStages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	delete(f.gen.responses, "implementation plan")

	first := f.orch.GetOrCreate(ctx, f.params(true))
	require.Equal(t, Failed, first.Outcome)
	require.NotNil(t, first.Todo)
	assert.ErrorIs(t, first.Err, extract.ErrExtractionExhausted)

	research, err := f.db.ListResearch(ctx, database.ResearchScope{TodoID: first.Todo.ID, IssueID: 42, ProjectID: f.project.ID})
	require.NoError(t, err)
	require.NotEmpty(t, research)

	f.gen.mu.Lock()
	f.gen.responses["implementation plan"] = planJSON
	f.gen.mu.Unlock()

	retry := f.orch.GetOrCreate(ctx, f.params(true))
	require.NoError(t, retry.Err)
	assert.Equal(t, AlreadyExists, retry.Outcome)
	assert.Equal(t, first.Todo.ID, retry.Todo.ID)

	steps, err := f.db.ListPlanSteps(ctx, f.project.ID, 42)
	require.NoError(t, err)
	assert.NotEmpty(t, steps)
	projectResearch, err := f.db.ListResearch(ctx, database.ProjectScope(f.project.ID))
	require.NoError(t, err)
	assert.NotEmpty(t, projectResearch)

	// issue research from the first run is reused
	again, err := f.db.ListResearch(ctx, database.ResearchScope{TodoID: first.Todo.ID, IssueID: 42, ProjectID: f.project.ID})
	require.NoError(t, err)
	assert.Equal(t, research, again)
	assert.EqualValues(t, 2, f.provider.acquired.Load())
	assert.EqualValues(t, 2, f.provider.released.Load())

	// once every stage is stored, a retry has no side effects
	f.gen.mu.Lock()
	calls := f.gen.calls
	f.gen.mu.Unlock()
	third := f.orch.GetOrCreate(ctx, f.params(true))
	assert.Equal(t, AlreadyExists, third.Outcome)
	assert.EqualValues(t, 2, f.provider.acquired.Load())
	assert.Equal(t, calls, f.gen.calls)
}

func TestGetOrCreateExistingWithoutAgentsSkipsResume(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.Equal(t, Created, f.orch.GetOrCreate(ctx, f.params(false)).Outcome)

	res := f.orch.GetOrCreate(ctx, f.params(false))
	assert.Equal(t, AlreadyExists, res.Outcome)
	assert.EqualValues(t, 1, f.provider.acquired.Load())

	steps, err := f.db.ListPlanSteps(ctx, f.project.ID, 42)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestGetOrCreateReleasesSnapshotOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture)
		wantErr error
		stored  bool
	}{
		{
			name:    "extraction exhausted",
			setup:   func(f *fixture) { delete(f.gen.responses, "triaging a GitHub") },
			wantErr: extract.ErrExtractionExhausted,
		},
		{
			name:    "plan fails after todo is stored",
			setup:   func(f *fixture) { delete(f.gen.responses, "implementation plan") },
			wantErr: extract.ErrExtractionExhausted,
			stored:  true,
		},
		{
			name:  "panic in research",
			setup: func(f *fixture) { f.gen.panicOn = "research assistant" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			var res CreateResult
			assert.NotPanics(t, func() {
				res = f.orch.GetOrCreate(context.Background(), f.params(true))
			})
			assert.Equal(t, Failed, res.Outcome)
			require.Error(t, res.Err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
			if tt.stored {
				assert.NotNil(t, res.Todo)
			}
			assert.EqualValues(t, 1, f.provider.acquired.Load())
			assert.EqualValues(t, 1, f.provider.released.Load())

			evts, err := f.db.ListEvents(context.Background(), f.project.ID, 42)
			require.NoError(t, err)
			require.NotEmpty(t, evts)
			assert.Equal(t, string(events.TodoFailed), evts[len(evts)-1].Type)
		})
	}
}

func TestGetOrCreateFailsBeforeAcquire(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, p *CreateParams)
		wantErr error
	}{
		{
			name:    "invalid repo",
			mutate:  func(_ *fixture, p *CreateParams) { p.Repo = "widgets" },
			wantErr: ErrInvalidRepo,
		},
		{
			name:    "missing credential",
			mutate:  func(_ *fixture, p *CreateParams) { p.Credential = "" },
			wantErr: ErrMissingCredential,
		},
		{
			name:    "issue not found",
			mutate:  func(_ *fixture, p *CreateParams) { p.IssueNumber = 7 },
			wantErr: tracker.ErrIssueNotFound,
		},
		{
			name:    "snapshot unavailable",
			mutate:  func(f *fixture, _ *CreateParams) { f.provider.acquireErr = errors.New("clone failed") },
			wantErr: snapshot.ErrAcquire,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.params(false)
			tt.mutate(f, &p)

			res := f.orch.GetOrCreate(context.Background(), p)
			assert.Equal(t, Failed, res.Outcome)
			assert.ErrorIs(t, res.Err, tt.wantErr)
			assert.Nil(t, res.Todo)
			assert.Zero(t, f.provider.released.Load())
		})
	}
}

func TestGetOrCreateWithSuppliedRootPath(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0644))

	p := f.params(false)
	p.RootPath = root
	res := f.orch.GetOrCreate(context.Background(), p)
	require.Equal(t, Created, res.Outcome)

	assert.Zero(t, f.provider.acquired.Load())
	assert.DirExists(t, root)
}

func TestGetOrCreateLinksBoardIssue(t *testing.T) {
	ctx := context.Background()
	for _, linkErr := range []error{nil, errors.New("jira down")} {
		linker := &fakeLinker{err: linkErr}
		f := newFixture(t, WithBoardLinker(linker, "https://app.jacb.ai"))

		boardID := "board-1"
		ib, err := f.db.CreateIssueBoard(ctx, database.IssueBoard{
			ProjectID:       f.project.ID,
			IssueSource:     database.IssueBoardSourceJira,
			OriginalBoardID: &boardID,
			CreatedBy:       "user-1",
		})
		require.NoError(t, err)
		bi, err := f.db.CreateBoardIssue(ctx, database.BoardIssue{
			IssueBoardID:  ib.ID,
			IssueID:       "10042",
			GitHubIssueID: 42,
			FullRepoName:  "acme/widgets",
		})
		require.NoError(t, err)
		token := "jira-token"
		_, err = f.db.UpsertAccount(ctx, database.Account{UserID: "user-1", JiraAccessToken: &token})
		require.NoError(t, err)
		require.NoError(t, f.db.SetProjectCloudID(ctx, f.project.ID, "cloud-1"))

		res := f.orch.GetOrCreate(ctx, f.params(false))
		require.Equal(t, Created, res.Outcome, "link error %v must not fail creation", linkErr)
		require.NotNil(t, res.Todo.OriginalIssueID)
		assert.Equal(t, bi.ID, *res.Todo.OriginalIssueID)

		require.Len(t, linker.links, 1)
		assert.Equal(t, board.BoardLink{
			CloudID:     "cloud-1",
			IssueID:     "10042",
			AccessToken: "jira-token",
			TodoURL:     board.TodoURL("https://app.jacb.ai", "acme/widgets", res.Todo.ID),
		}, linker.links[0])
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "created", Created.String())
	assert.Equal(t, "already_exists", AlreadyExists.String())
	assert.Equal(t, "failed", Failed.String())
}

func TestTodoName(t *testing.T) {
	assert.Equal(t, "Commit", todoName(" Commit ", "Issue"))
	assert.Equal(t, "Issue", todoName("", "Issue"))
	assert.Equal(t, "New Todo", todoName("", ""))
}
