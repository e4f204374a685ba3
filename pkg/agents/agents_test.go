package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/internal/llm"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/logger"
)

// fakeGenerator answers by matching a marker in the system prompt.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	calls     int
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for marker, resp := range f.responses {
		if strings.Contains(req.SystemPrompt, marker) {
			return resp, nil
		}
	}
	return "{}", nil
}

func (f *fakeGenerator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const (
	researchJSON = "```json\n" + `[
		{"type": "ResearchCodebase", "question": "Where are HTTP calls made?", "answer": "client.go"},
		{"type": "AskProjectOwner", "question": "Max retries?", "answer": ""}
	]` + "\n```"
	planJSON = "```json\n" + `[
		{"type": "EditExistingCode", "title": "Wrap calls", "instructions": "Add retry loop", "filePath": "client.go", "exitCriteria": "retries on 429"},
		{"type": "CreateNewCode", "title": "Add tests", "instructions": "Cover backoff", "filePath": "client_test.go"}
	]` + "\n```"
	evaluationJSON = `{"difficulty": 3, "confidence": 8, "summary": "Small change", "risks": ["flaky tests"]}`
	issueJSON      = `{"commitTitle": "Add retry to HTTP client", "stepsToAddressIssue": ["wrap calls"], "filesToCreate": [], "filesToUpdate": ["client.go"]}`
	projectJSON    = `[{"question": "What does it do?", "answer": "Calls APIs"}]`
)

func newFixture(t *testing.T) (Deps, *fakeGenerator, *database.Project) {
	t.Helper()
	ctx := context.Background()
	db, err := database.NewSQLiteDB(ctx, filepath.Join(t.TempDir(), "agents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p, err := db.CreateProject(ctx, "acme/widgets")
	require.NoError(t, err)

	gen := &fakeGenerator{responses: map[string]string{
		"research assistant":  researchJSON,
		"implementation plan": planJSON,
		"estimating whether":  evaluationJSON,
		"triaging a GitHub":   issueJSON,
		"orientation brief":   projectJSON,
	}}
	log := logger.CreateTestLogger()
	return Deps{
		DB:        db,
		Extractor: extract.New(gen, log),
		Events:    events.NewRecorder(db, log),
		Logger:    log,
	}, gen, p
}

func TestExtractIssue(t *testing.T) {
	deps, gen, _ := newFixture(t)

	got, err := ExtractIssue(context.Background(), deps.Extractor, "client.go\n", "Add retry\nRetry on 429")
	require.NoError(t, err)
	assert.Equal(t, "Add retry to HTTP client", got.CommitTitle)
	assert.Equal(t, []string{"client.go"}, got.FilesToUpdate)
	assert.Equal(t, 1, gen.Calls())
}

func TestResearcherGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	deps, gen, p := newFixture(t)
	r := NewResearcher(deps)
	in := ResearchInput{TodoID: 1, IssueID: 42, ProjectID: p.ID, IssueText: "Add retry", SourceMap: "client.go\n"}

	first, err := r.GetOrCreate(ctx, in)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, ResearchCodebase, first[0].Type)
	assert.Equal(t, "Max retries?", first[1].Question)

	second, err := r.GetOrCreate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.Calls())

	evts, err := deps.Events.List(ctx, p.ID, 42)
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, string(events.ResearchCreated), evts[0].Type)
}

func TestResearcherEmptyResultIsStored(t *testing.T) {
	ctx := context.Background()
	deps, gen, p := newFixture(t)
	gen.responses["research assistant"] = "[]"
	r := NewResearcher(deps)
	in := ResearchInput{TodoID: 1, IssueID: 42, ProjectID: p.ID, IssueText: "Typo", SourceMap: "README.md\n"}

	got, err := r.GetOrCreate(ctx, in)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ResearchComplete, got[0].Type)

	_, err = r.GetOrCreate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Calls())
}

func TestProjectResearchUsesProjectScope(t *testing.T) {
	ctx := context.Background()
	deps, gen, p := newFixture(t)
	r := NewResearcher(deps)

	got, err := r.GetOrCreateProjectResearch(ctx, p.ID, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].TodoID)
	assert.Equal(t, int64(0), got[0].IssueID)
	assert.Equal(t, ProjectResearch, got[0].Type)

	_, err = r.GetOrCreateProjectResearch(ctx, p.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Calls())
}

func TestPlannerGeneratesOnce(t *testing.T) {
	ctx := context.Background()
	deps, gen, p := newFixture(t)
	pl := NewPlanner(deps)
	in := PlanInput{ProjectID: p.ID, IssueNumber: 42, IssueText: "Add retry", SourceMap: "client.go\n"}

	steps, err := pl.GetOrCreate(ctx, in)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, "client.go", steps[0].FilePath)
	assert.Equal(t, 2, steps[1].StepOrder)

	_, err = pl.GetOrCreate(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.Calls())
}

func TestEvaluator(t *testing.T) {
	ctx := context.Background()
	deps, gen, p := newFixture(t)
	issueID := int64(42)
	todo, err := deps.DB.InsertTodo(ctx, database.NewTodo{ProjectID: p.ID, IssueID: &issueID, Name: "Add retry"})
	require.NoError(t, err)

	ev := NewEvaluator(deps)
	in := EvaluationInput{TodoID: todo.ID, ProjectID: p.ID, IssueNumber: 42, IssueText: "Add retry"}

	t.Run("not ready without a plan", func(t *testing.T) {
		res, err := ev.GetOrCreate(ctx, in)
		require.NoError(t, err)
		assert.False(t, res.Ready)
		assert.Nil(t, res.Evaluation)
		assert.Zero(t, gen.Calls())
	})

	_, err = NewPlanner(deps).GetOrCreate(ctx, PlanInput{ProjectID: p.ID, IssueNumber: 42, IssueText: "Add retry", SourceMap: "client.go\n"})
	require.NoError(t, err)
	before := gen.Calls()

	t.Run("generates and caches", func(t *testing.T) {
		res, err := ev.GetOrCreate(ctx, in)
		require.NoError(t, err)
		require.True(t, res.Ready)
		assert.Equal(t, 3, res.Evaluation.Difficulty)
		assert.Equal(t, before+1, gen.Calls())

		cached, err := ev.GetOrCreate(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, res, cached)
		assert.Equal(t, before+1, gen.Calls())
	})
}

func TestCodebaseContextReusesStoredItems(t *testing.T) {
	ctx := context.Background()
	deps, _, p := newFixture(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n\nfunc A() {\n}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.go"), []byte("package b\n"), 0644))

	items, err := deps.GetOrCreateCodebaseContext(ctx, p.ID, root, []string{"a.go"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []string{"func A()"}, items[0].Declarations)

	// a.go changes on disk, but the stored item is reused
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0644))
	items, err = deps.GetOrCreateCodebaseContext(ctx, p.ID, root, []string{"a.go", "b.go"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, []string{"func A()"}, items[0].Declarations)
	assert.Equal(t, "b.go", items[1].File)

	stored, err := deps.StoredCodebaseContext(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSourceMapRequiresASource(t *testing.T) {
	_, err := SourceMap("", "")
	assert.ErrorIs(t, err, ErrNoSource)

	got, err := SourceMap("", "supplied")
	require.NoError(t, err)
	assert.Equal(t, "supplied", got)
}
