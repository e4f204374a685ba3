package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(context.Background(), filepath.Join(t.TempDir(), "jacob.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestProject(t *testing.T, db *SQLiteDB) *Project {
	t.Helper()
	p, err := db.CreateProject(context.Background(), "acme/widgets")
	require.NoError(t, err)
	return p
}

func issue(n int64) *int64 { return &n }

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "jacob.db")

	db, err := NewSQLiteDB(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewSQLiteDB(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestInsertTodoDuplicate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := newTestProject(t, db)

	first, err := db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(42), Name: "Add retry", Position: 42})
	require.NoError(t, err)
	assert.Equal(t, TodoStatusTodo, first.Status)
	assert.False(t, first.IsArchived)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(42), Name: "again"})
	assert.ErrorIs(t, err, ErrDuplicate)

	// todos without an issue are not constrained
	_, err = db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, Name: "manual"})
	require.NoError(t, err)
	_, err = db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, Name: "manual"})
	require.NoError(t, err)

	found, err := db.FindTodoByIssue(ctx, p.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = db.FindTodoByIssue(ctx, p.ID, 7)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentInsertsYieldOneRow(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := newTestProject(t, db)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(9), Name: "race"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrDuplicate)
	}
	assert.Equal(t, 1, succeeded)
}

func TestListUpdateArchiveTodos(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := newTestProject(t, db)

	a, err := db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(1), Name: "a", Position: 1})
	require.NoError(t, err)
	b, err := db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(2), Name: "b", Position: 2})
	require.NoError(t, err)
	c, err := db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(3), Name: "c", Position: 3})
	require.NoError(t, err)

	list, err := db.ListTodos(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []int64{c.ID, b.ID, a.ID}, []int64{list[0].ID, list[1].ID, list[2].ID})

	status := TodoStatusInProgress
	name := "renamed"
	updated, err := db.UpdateTodo(ctx, a.ID, TodoUpdate{Status: &status, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, TodoStatusInProgress, updated.Status)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, a.Description, updated.Description)

	_, err = db.ArchiveTodo(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, db.UpdateTodoPositions(ctx, []int64{c.ID, 0, a.ID}))
	list, err = db.ListTodos(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, 3, list[0].Position)
	assert.Equal(t, 1, list[1].Position)

	n, err := db.ArchiveTodosByIssue(ctx, p.ID, 999)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.ArchiveTodosByIssue(ctx, p.ID, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, db.DeleteTodo(ctx, a.ID))
	assert.ErrorIs(t, db.DeleteTodo(ctx, a.ID), ErrNotFound)
	_, err = db.GetTodo(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTodoEvaluation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := newTestProject(t, db)

	todo, err := db.InsertTodo(ctx, NewTodo{ProjectID: p.ID, IssueID: issue(5), Name: "eval"})
	require.NoError(t, err)
	assert.Nil(t, todo.EvaluationData)

	require.NoError(t, db.SetTodoEvaluation(ctx, todo.ID, []byte(`{"confidenceScore":4}`)))
	got, err := db.GetTodo(ctx, todo.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"confidenceScore":4}`, string(got.EvaluationData))
}

func TestInsertResearchOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	scope := ResearchScope{TodoID: 1, IssueID: 42, ProjectID: 7}

	items, created, err := db.InsertResearchOnce(ctx, scope, []NewResearch{
		{Type: "ResearchAndAskQuestions", Question: "Which backoff?"},
		{Type: "ResearchCodebase", Question: "Where is the client?", Answer: "internal/llm"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, items, 2)

	again, created, err := db.InsertResearchOnce(ctx, scope, []NewResearch{{Question: "ignored"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, items, again)

	require.NoError(t, db.UpdateResearchAnswer(ctx, items[0].ID, 1, 42, "exponential"))
	assert.ErrorIs(t, db.UpdateResearchAnswer(ctx, items[0].ID, 2, 42, "x"), ErrNotFound)

	list, err := db.ListResearch(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, "exponential", list[0].Answer)

	project, err := db.ListResearch(ctx, ProjectScope(7))
	require.NoError(t, err)
	assert.Empty(t, project)
}

func TestInsertPlanStepsOnce(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	steps, created, err := db.InsertPlanStepsOnce(ctx, 1, 42, []NewPlanStep{
		{Type: "EditExistingCode", Title: "Wrap client", FilePath: "client.go"},
		{Type: "CreateNewCode", Title: "Add tests", FilePath: "client_test.go"},
	})
	require.NoError(t, err)
	assert.True(t, created)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, "Add tests", steps[1].Title)

	_, created, err = db.InsertPlanStepsOnce(ctx, 1, 42, []NewPlanStep{{Title: "ignored"}})
	require.NoError(t, err)
	assert.False(t, created)

	other, err := db.ListPlanSteps(ctx, 1, 43)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCodebaseContextUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	require.NoError(t, db.UpsertCodebaseContext(ctx, 1, "main.go", []byte(`{"v":1}`)))
	require.NoError(t, db.UpsertCodebaseContext(ctx, 1, "main.go", []byte(`{"v":2}`)))

	items, err := db.ListCodebaseContext(ctx, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"v":2}`, string(items[0].Context))
}

func TestBoardLookups(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := newTestProject(t, db)

	_, err := db.FindIssueBoard(ctx, p.ID, IssueBoardSourceJira)
	assert.ErrorIs(t, err, ErrNotFound)

	boardID := "10001"
	board, err := db.CreateIssueBoard(ctx, IssueBoard{ProjectID: p.ID, IssueSource: IssueBoardSourceJira, OriginalBoardID: &boardID, CreatedBy: "user-1"})
	require.NoError(t, err)

	found, err := db.FindIssueBoard(ctx, p.ID, IssueBoardSourceJira)
	require.NoError(t, err)
	assert.Equal(t, board.ID, found.ID)
	assert.Equal(t, "10001", *found.OriginalBoardID)

	_, err = db.CreateBoardIssue(ctx, BoardIssue{IssueBoardID: board.ID, IssueID: "JIRA-9", GitHubIssueID: 42, FullRepoName: p.RepoFullName})
	require.NoError(t, err)
	bi, err := db.FindBoardIssue(ctx, board.ID, 42, p.RepoFullName)
	require.NoError(t, err)
	assert.Equal(t, "JIRA-9", bi.IssueID)

	token := "secret"
	_, err = db.UpsertAccount(ctx, Account{UserID: "user-1", JiraAccessToken: &token})
	require.NoError(t, err)
	acct, err := db.FindAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "secret", *acct.JiraAccessToken)

	require.NoError(t, db.SetProjectCloudID(ctx, p.ID, "cloud-1"))
	got, err := db.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "cloud-1", *got.JiraCloudID)
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	todoID := int64(3)
	_, err := db.StoreEvent(ctx, Event{ProjectID: 1, IssueID: 42, TodoID: &todoID, Type: "todo_created", Payload: []byte(`{"name":"Add retry"}`)})
	require.NoError(t, err)
	_, err = db.StoreEvent(ctx, Event{ProjectID: 1, IssueID: 42, Type: "todo_exists"})
	require.NoError(t, err)

	events, err := db.ListEvents(ctx, 1, 42)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "todo_created", events[0].Type)
	assert.Equal(t, int64(3), *events[0].TodoID)
	assert.Nil(t, events[1].TodoID)
	assert.JSONEq(t, `{}`, string(events[1].Payload))
}
