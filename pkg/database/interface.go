package database

import (
	"context"
	"database/sql"
)

// Database is the persistence boundary for todos and everything
// generated for them.
type Database interface {
	// Projects
	CreateProject(ctx context.Context, repoFullName string) (*Project, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	GetProjectByRepo(ctx context.Context, repoFullName string) (*Project, error)
	SetProjectCloudID(ctx context.Context, id int64, cloudID string) error

	// Todos
	FindTodoByIssue(ctx context.Context, projectID, issueID int64) (*Todo, error)
	FindTodoByIssueID(ctx context.Context, issueID int64) (*Todo, error)
	InsertTodo(ctx context.Context, t NewTodo) (*Todo, error)
	GetTodo(ctx context.Context, id int64) (*Todo, error)
	ListTodos(ctx context.Context, projectID int64) ([]Todo, error)
	UpdateTodo(ctx context.Context, id int64, u TodoUpdate) (*Todo, error)
	ArchiveTodo(ctx context.Context, id int64) (*Todo, error)
	ArchiveTodosByIssue(ctx context.Context, projectID, issueID int64) (int64, error)
	UpdateTodoPositions(ctx context.Context, ids []int64) error
	DeleteTodo(ctx context.Context, id int64) error
	SetTodoEvaluation(ctx context.Context, id int64, data []byte) error

	// Research
	ListResearch(ctx context.Context, scope ResearchScope) ([]Research, error)
	InsertResearchOnce(ctx context.Context, scope ResearchScope, items []NewResearch) ([]Research, bool, error)
	UpdateResearchAnswer(ctx context.Context, id, todoID, issueID int64, answer string) error

	// Plan steps
	ListPlanSteps(ctx context.Context, projectID, issueNumber int64) ([]PlanStep, error)
	InsertPlanStepsOnce(ctx context.Context, projectID, issueNumber int64, steps []NewPlanStep) ([]PlanStep, bool, error)

	// Codebase context
	ListCodebaseContext(ctx context.Context, projectID int64) ([]CodebaseContext, error)
	UpsertCodebaseContext(ctx context.Context, projectID int64, filePath string, data []byte) error

	// Issue boards
	CreateIssueBoard(ctx context.Context, b IssueBoard) (*IssueBoard, error)
	FindIssueBoard(ctx context.Context, projectID int64, source IssueBoardSource) (*IssueBoard, error)
	CreateBoardIssue(ctx context.Context, i BoardIssue) (*BoardIssue, error)
	FindBoardIssue(ctx context.Context, boardID, githubIssueID int64, repo string) (*BoardIssue, error)
	UpsertAccount(ctx context.Context, a Account) (*Account, error)
	FindAccount(ctx context.Context, userID string) (*Account, error)

	// Events
	StoreEvent(ctx context.Context, e Event) (*Event, error)
	ListEvents(ctx context.Context, projectID, issueID int64) ([]Event, error)

	// DB exposes the connection for packages that own their own tables.
	DB() *sql.DB

	Ping(ctx context.Context) error
	Close() error
}
