package database

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup by key matches no row.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate row")
)

// TodoStatus is the lifecycle status stored on a todo row.
type TodoStatus string

const (
	TodoStatusTodo       TodoStatus = "TODO"
	TodoStatusInProgress TodoStatus = "IN_PROGRESS"
	TodoStatusDone       TodoStatus = "DONE"
	TodoStatusError      TodoStatus = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s TodoStatus) Valid() bool {
	switch s {
	case TodoStatusTodo, TodoStatusInProgress, TodoStatusDone, TodoStatusError:
		return true
	}
	return false
}

// IssueBoardSource identifies where a linked issue board lives.
type IssueBoardSource string

const (
	IssueBoardSourceGitHub IssueBoardSource = "GITHUB"
	IssueBoardSourceJira   IssueBoardSource = "JIRA"
	IssueBoardSourceLinear IssueBoardSource = "LINEAR"
)

// Project is a tracked repository.
type Project struct {
	ID           int64     `json:"id"`
	RepoFullName string    `json:"repo_full_name"`
	JiraCloudID  *string   `json:"jira_cloud_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Todo is the unit of work derived from one tracked issue.
type Todo struct {
	ID              int64           `json:"id"`
	ProjectID       int64           `json:"project_id"`
	IssueID         *int64          `json:"issue_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Status          TodoStatus      `json:"status"`
	Position        int             `json:"position"`
	IsArchived      bool            `json:"is_archived"`
	Branch          *string         `json:"branch,omitempty"`
	EvaluationData  json.RawMessage `json:"evaluation_data,omitempty"`
	OriginalIssueID *int64          `json:"original_issue_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewTodo holds the columns supplied when inserting a todo.
type NewTodo struct {
	ProjectID       int64      `json:"project_id" binding:"required"`
	IssueID         *int64     `json:"issue_id"`
	Name            string     `json:"name" binding:"required"`
	Description     string     `json:"description"`
	Status          TodoStatus `json:"status"`
	Position        int        `json:"position"`
	Branch          *string    `json:"branch"`
	OriginalIssueID *int64     `json:"original_issue_id"`
}

// TodoUpdate is a partial update; nil fields are left unchanged.
type TodoUpdate struct {
	Name        *string     `json:"name"`
	Description *string     `json:"description"`
	Status      *TodoStatus `json:"status"`
	IssueID     *int64      `json:"issue_id"`
	Branch      *string     `json:"branch"`
	IsArchived  *bool       `json:"is_archived"`
}

// ResearchScope addresses the research items of one issue, or of a whole
// project when TodoID and IssueID are both zero.
type ResearchScope struct {
	TodoID    int64
	IssueID   int64
	ProjectID int64
}

// ProjectScope returns the project-wide research scope.
func ProjectScope(projectID int64) ResearchScope {
	return ResearchScope{ProjectID: projectID}
}

// Research is a clarifying question and its eventual answer.
type Research struct {
	ID        int64     `json:"id"`
	TodoID    int64     `json:"todo_id"`
	IssueID   int64     `json:"issue_id"`
	ProjectID int64     `json:"project_id"`
	Type      string    `json:"type"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// NewResearch is one research item to insert.
type NewResearch struct {
	Type     string
	Question string
	Answer   string
}

// PlanStep is one ordered implementation instruction for an issue.
type PlanStep struct {
	ID           int64     `json:"id"`
	ProjectID    int64     `json:"project_id"`
	IssueNumber  int64     `json:"issue_number"`
	StepOrder    int       `json:"step_order"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Instructions string    `json:"instructions"`
	FilePath     string    `json:"file_path"`
	ExitCriteria string    `json:"exit_criteria"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewPlanStep is one plan step to insert; order follows slice position.
type NewPlanStep struct {
	Type         string
	Title        string
	Instructions string
	FilePath     string
	ExitCriteria string
}

// CodebaseContext is the cached analysis of one file.
type CodebaseContext struct {
	ID        int64           `json:"id"`
	ProjectID int64           `json:"project_id"`
	FilePath  string          `json:"file_path"`
	Context   json.RawMessage `json:"context"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IssueBoard links a project to an external issue board.
type IssueBoard struct {
	ID              int64            `json:"id"`
	ProjectID       int64            `json:"project_id"`
	IssueSource     IssueBoardSource `json:"issue_source"`
	OriginalBoardID *string          `json:"original_board_id,omitempty"`
	CreatedBy       string           `json:"created_by"`
}

// BoardIssue is an external board issue mirrored to a GitHub issue.
type BoardIssue struct {
	ID            int64  `json:"id"`
	IssueBoardID  int64  `json:"issue_board_id"`
	IssueID       string `json:"issue_id"`
	GitHubIssueID int64  `json:"github_issue_id"`
	FullRepoName  string `json:"full_repo_name"`
}

// Account holds third-party credentials for a user.
type Account struct {
	ID              int64   `json:"id"`
	UserID          string  `json:"user_id"`
	JiraAccessToken *string `json:"-"`
}

// Event is a persisted todo lifecycle event.
type Event struct {
	ID        int64           `json:"id"`
	ProjectID int64           `json:"project_id"`
	IssueID   int64           `json:"issue_id"`
	TodoID    *int64          `json:"todo_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
