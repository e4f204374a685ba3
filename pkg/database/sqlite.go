package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

var _ Database = (*SQLiteDB)(nil)

// NewSQLiteDB opens dbPath and applies the embedded migrations.
//
// Transactions take the write lock on BEGIN so that read-then-insert
// sequences cannot interleave with another writer.
func NewSQLiteDB(ctx context.Context, dbPath string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := NewMigrationRunner(db).RunMigrations(ctx, sub); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) DB() *sql.DB {
	return s.db
}

func (s *SQLiteDB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// IsUniqueViolation reports whether err is a SQLite unique constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// timestamp scans DATETIME columns, which the driver may hand back either
// as time.Time or as text depending on how the column was produced.
type timestamp struct {
	t *time.Time
}

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*ts.t = time.Time{}
	case time.Time:
		*ts.t = v
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	return nil
}

func (ts timestamp) parse(v string) error {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, "2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05.999999999-07:00"} {
		if t, err := time.Parse(layout, v); err == nil {
			*ts.t = t
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", v)
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

// ---- projects ----

const projectColumns = `id, repo_full_name, jira_cloud_id, created_at`

func scanProject(r rowScanner) (*Project, error) {
	var p Project
	var cloudID sql.NullString
	if err := r.Scan(&p.ID, &p.RepoFullName, &cloudID, timestamp{&p.CreatedAt}); err != nil {
		return nil, err
	}
	p.JiraCloudID = stringPtr(cloudID)
	return &p, nil
}

func (s *SQLiteDB) CreateProject(ctx context.Context, repoFullName string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO projects (repo_full_name) VALUES (?)
		RETURNING `+projectColumns, repoFullName)
	p, err := scanProject(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("project %s: %w", repoFullName, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	return p, nil
}

func (s *SQLiteDB) GetProject(ctx context.Context, id int64) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "project")
	}
	return p, nil
}

func (s *SQLiteDB) GetProjectByRepo(ctx context.Context, repoFullName string) (*Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE repo_full_name = ?`, repoFullName))
	if err != nil {
		return nil, notFound(err, "project")
	}
	return p, nil
}

func (s *SQLiteDB) SetProjectCloudID(ctx context.Context, id int64, cloudID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE projects SET jira_cloud_id = ? WHERE id = ?`, cloudID, id)
	if err != nil {
		return fmt.Errorf("failed to set jira cloud id: %w", err)
	}
	return expectRows(res, "project")
}

func expectRows(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// ---- todos ----

const todoColumns = `id, project_id, issue_id, name, description, status, position, is_archived,
	branch, evaluation_data, original_issue_id, created_at, updated_at`

func scanTodo(r rowScanner) (*Todo, error) {
	var t Todo
	var issueID, originalIssueID sql.NullInt64
	var branch, evaluation sql.NullString
	err := r.Scan(
		&t.ID, &t.ProjectID, &issueID, &t.Name, &t.Description, &t.Status, &t.Position, &t.IsArchived,
		&branch, &evaluation, &originalIssueID, timestamp{&t.CreatedAt}, timestamp{&t.UpdatedAt},
	)
	if err != nil {
		return nil, err
	}
	t.IssueID = intPtr(issueID)
	t.OriginalIssueID = intPtr(originalIssueID)
	t.Branch = stringPtr(branch)
	if evaluation.Valid && evaluation.String != "" {
		t.EvaluationData = []byte(evaluation.String)
	}
	return &t, nil
}

func collectTodos(rows *sql.Rows) ([]Todo, error) {
	defer rows.Close()
	todos := []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *t)
	}
	return todos, rows.Err()
}

// FindTodoByIssue returns the todo for (projectID, issueID), or ErrNotFound.
func (s *SQLiteDB) FindTodoByIssue(ctx context.Context, projectID, issueID int64) (*Todo, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE project_id = ? AND issue_id = ?`, projectID, issueID))
	if err != nil {
		return nil, notFound(err, "todo")
	}
	return t, nil
}

// FindTodoByIssueID returns the oldest todo for issueID in any project.
func (s *SQLiteDB) FindTodoByIssueID(ctx context.Context, issueID int64) (*Todo, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx,
		`SELECT `+todoColumns+` FROM todos WHERE issue_id = ? ORDER BY id LIMIT 1`, issueID))
	if err != nil {
		return nil, notFound(err, "todo")
	}
	return t, nil
}

// InsertTodo inserts a todo. A second todo for the same (project, issue)
// fails with ErrDuplicate.
func (s *SQLiteDB) InsertTodo(ctx context.Context, n NewTodo) (*Todo, error) {
	if n.Status == "" {
		n.Status = TodoStatusTodo
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO todos (project_id, issue_id, name, description, status, position, branch, original_issue_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING `+todoColumns,
		n.ProjectID, nullableInt(n.IssueID), n.Name, n.Description, n.Status, n.Position,
		nullableString(n.Branch), nullableInt(n.OriginalIssueID),
	)
	t, err := scanTodo(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("todo for project %d: %w", n.ProjectID, ErrDuplicate)
		}
		return nil, fmt.Errorf("failed to insert todo: %w", err)
	}
	return t, nil
}

func (s *SQLiteDB) GetTodo(ctx context.Context, id int64) (*Todo, error) {
	t, err := scanTodo(s.db.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "todo")
	}
	return t, nil
}

// ListTodos returns the non-archived todos of a project, highest position first.
func (s *SQLiteDB) ListTodos(ctx context.Context, projectID int64) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+todoColumns+` FROM todos
		WHERE project_id = ? AND is_archived = 0
		ORDER BY position DESC, id DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return collectTodos(rows)
}

func (s *SQLiteDB) UpdateTodo(ctx context.Context, id int64, u TodoUpdate) (*Todo, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE todos
		SET name = COALESCE(?, name),
		    description = COALESCE(?, description),
		    status = COALESCE(?, status),
		    issue_id = COALESCE(?, issue_id),
		    branch = COALESCE(?, branch),
		    is_archived = COALESCE(?, is_archived),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING `+todoColumns,
		nullableString(u.Name), nullableString(u.Description), statusArg(u.Status),
		nullableInt(u.IssueID), nullableString(u.Branch), boolArg(u.IsArchived), id,
	)
	t, err := scanTodo(row)
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, fmt.Errorf("todo %d: %w", id, ErrDuplicate)
		}
		return nil, notFound(err, "todo")
	}
	return t, nil
}

func statusArg(s *TodoStatus) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*s), Valid: true}
}

func boolArg(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func (s *SQLiteDB) ArchiveTodo(ctx context.Context, id int64) (*Todo, error) {
	archived := true
	return s.UpdateTodo(ctx, id, TodoUpdate{IsArchived: &archived})
}

// ArchiveTodosByIssue archives every todo of the issue and returns how many
// rows changed. Zero matches is not an error.
func (s *SQLiteDB) ArchiveTodosByIssue(ctx context.Context, projectID, issueID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE todos SET is_archived = 1, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND issue_id = ?`, projectID, issueID)
	if err != nil {
		return 0, fmt.Errorf("failed to archive todos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// UpdateTodoPositions sets position = index+1 for each id, in one transaction.
// Zero ids are skipped.
func (s *SQLiteDB) UpdateTodoPositions(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, id := range ids {
		if id == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE todos SET position = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, i+1, id); err != nil {
			return fmt.Errorf("failed to update position of todo %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteDB) DeleteTodo(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete todo: %w", err)
	}
	return expectRows(res, "todo")
}

func (s *SQLiteDB) SetTodoEvaluation(ctx context.Context, id int64, data []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE todos SET evaluation_data = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to store evaluation: %w", err)
	}
	return expectRows(res, "todo")
}

// ---- research ----

const researchColumns = `id, todo_id, issue_id, project_id, type, question, answer, created_at`

func listResearch(ctx context.Context, q querier, scope ResearchScope) ([]Research, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+researchColumns+` FROM research
		WHERE todo_id = ? AND issue_id = ? AND project_id = ?
		ORDER BY id`, scope.TodoID, scope.IssueID, scope.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list research: %w", err)
	}
	defer rows.Close()

	items := []Research{}
	for rows.Next() {
		var r Research
		if err := rows.Scan(&r.ID, &r.TodoID, &r.IssueID, &r.ProjectID, &r.Type, &r.Question, &r.Answer, timestamp{&r.CreatedAt}); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (s *SQLiteDB) ListResearch(ctx context.Context, scope ResearchScope) ([]Research, error) {
	return listResearch(ctx, s.db, scope)
}

// InsertResearchOnce stores items only if the scope has no research yet.
// It returns the scope's research and whether this call inserted it.
func (s *SQLiteDB) InsertResearchOnce(ctx context.Context, scope ResearchScope, items []NewResearch) ([]Research, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := listResearch(ctx, tx, scope)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO research (todo_id, issue_id, project_id, type, question, answer)
			VALUES (?, ?, ?, ?, ?, ?)`,
			scope.TodoID, scope.IssueID, scope.ProjectID, item.Type, item.Question, item.Answer); err != nil {
			return nil, false, fmt.Errorf("failed to insert research: %w", err)
		}
	}
	inserted, err := listResearch(ctx, tx, scope)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit research: %w", err)
	}
	return inserted, true, nil
}

func (s *SQLiteDB) UpdateResearchAnswer(ctx context.Context, id, todoID, issueID int64, answer string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE research SET answer = ? WHERE id = ? AND todo_id = ? AND issue_id = ?`, answer, id, todoID, issueID)
	if err != nil {
		return fmt.Errorf("failed to update research answer: %w", err)
	}
	return expectRows(res, "research item")
}

// ---- plan steps ----

const planStepColumns = `id, project_id, issue_number, step_order, type, title, instructions, file_path, exit_criteria, created_at`

func listPlanSteps(ctx context.Context, q querier, projectID, issueNumber int64) ([]PlanStep, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+planStepColumns+` FROM plan_steps
		WHERE project_id = ? AND issue_number = ?
		ORDER BY step_order`, projectID, issueNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan steps: %w", err)
	}
	defer rows.Close()

	steps := []PlanStep{}
	for rows.Next() {
		var p PlanStep
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.IssueNumber, &p.StepOrder, &p.Type, &p.Title,
			&p.Instructions, &p.FilePath, &p.ExitCriteria, timestamp{&p.CreatedAt}); err != nil {
			return nil, err
		}
		steps = append(steps, p)
	}
	return steps, rows.Err()
}

func (s *SQLiteDB) ListPlanSteps(ctx context.Context, projectID, issueNumber int64) ([]PlanStep, error) {
	return listPlanSteps(ctx, s.db, projectID, issueNumber)
}

// InsertPlanStepsOnce stores steps only if the issue has no plan yet.
func (s *SQLiteDB) InsertPlanStepsOnce(ctx context.Context, projectID, issueNumber int64, steps []NewPlanStep) ([]PlanStep, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := listPlanSteps(ctx, tx, projectID, issueNumber)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		return existing, false, nil
	}

	for i, step := range steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_steps (project_id, issue_number, step_order, type, title, instructions, file_path, exit_criteria)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			projectID, issueNumber, i+1, step.Type, step.Title, step.Instructions, step.FilePath, step.ExitCriteria); err != nil {
			return nil, false, fmt.Errorf("failed to insert plan step: %w", err)
		}
	}
	inserted, err := listPlanSteps(ctx, tx, projectID, issueNumber)
	if err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit plan: %w", err)
	}
	return inserted, true, nil
}

// ---- codebase context ----

func (s *SQLiteDB) ListCodebaseContext(ctx context.Context, projectID int64) ([]CodebaseContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, file_path, context, updated_at FROM codebase_context
		WHERE project_id = ? ORDER BY file_path`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list codebase context: %w", err)
	}
	defer rows.Close()

	items := []CodebaseContext{}
	for rows.Next() {
		var c CodebaseContext
		var raw string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.FilePath, &raw, timestamp{&c.UpdatedAt}); err != nil {
			return nil, err
		}
		c.Context = []byte(raw)
		items = append(items, c)
	}
	return items, rows.Err()
}

func (s *SQLiteDB) UpsertCodebaseContext(ctx context.Context, projectID int64, filePath string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO codebase_context (project_id, file_path, context) VALUES (?, ?, ?)
		ON CONFLICT (project_id, file_path)
		DO UPDATE SET context = excluded.context, updated_at = CURRENT_TIMESTAMP`,
		projectID, filePath, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert codebase context: %w", err)
	}
	return nil
}

// ---- issue boards ----

func scanIssueBoard(r rowScanner) (*IssueBoard, error) {
	var b IssueBoard
	var original sql.NullString
	if err := r.Scan(&b.ID, &b.ProjectID, &b.IssueSource, &original, &b.CreatedBy); err != nil {
		return nil, err
	}
	b.OriginalBoardID = stringPtr(original)
	return &b, nil
}

func (s *SQLiteDB) CreateIssueBoard(ctx context.Context, b IssueBoard) (*IssueBoard, error) {
	out, err := scanIssueBoard(s.db.QueryRowContext(ctx, `
		INSERT INTO issue_boards (project_id, issue_source, original_board_id, created_by)
		VALUES (?, ?, ?, ?)
		RETURNING id, project_id, issue_source, original_board_id, created_by`,
		b.ProjectID, b.IssueSource, nullableString(b.OriginalBoardID), b.CreatedBy))
	if err != nil {
		return nil, fmt.Errorf("failed to create issue board: %w", err)
	}
	return out, nil
}

func (s *SQLiteDB) FindIssueBoard(ctx context.Context, projectID int64, source IssueBoardSource) (*IssueBoard, error) {
	b, err := scanIssueBoard(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, issue_source, original_board_id, created_by
		FROM issue_boards WHERE project_id = ? AND issue_source = ?
		ORDER BY id LIMIT 1`, projectID, source))
	if err != nil {
		return nil, notFound(err, "issue board")
	}
	return b, nil
}

func (s *SQLiteDB) CreateBoardIssue(ctx context.Context, i BoardIssue) (*BoardIssue, error) {
	var out BoardIssue
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO board_issues (issue_board_id, issue_id, github_issue_id, full_repo_name)
		VALUES (?, ?, ?, ?)
		RETURNING id, issue_board_id, issue_id, github_issue_id, full_repo_name`,
		i.IssueBoardID, i.IssueID, i.GitHubIssueID, i.FullRepoName,
	).Scan(&out.ID, &out.IssueBoardID, &out.IssueID, &out.GitHubIssueID, &out.FullRepoName)
	if err != nil {
		return nil, fmt.Errorf("failed to create board issue: %w", err)
	}
	return &out, nil
}

func (s *SQLiteDB) FindBoardIssue(ctx context.Context, boardID, githubIssueID int64, repo string) (*BoardIssue, error) {
	var out BoardIssue
	err := s.db.QueryRowContext(ctx, `
		SELECT id, issue_board_id, issue_id, github_issue_id, full_repo_name
		FROM board_issues
		WHERE issue_board_id = ? AND github_issue_id = ? AND full_repo_name = ?
		ORDER BY id LIMIT 1`, boardID, githubIssueID, repo,
	).Scan(&out.ID, &out.IssueBoardID, &out.IssueID, &out.GitHubIssueID, &out.FullRepoName)
	if err != nil {
		return nil, notFound(err, "board issue")
	}
	return &out, nil
}

func (s *SQLiteDB) UpsertAccount(ctx context.Context, a Account) (*Account, error) {
	var out Account
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (user_id, jira_access_token) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET jira_access_token = excluded.jira_access_token
		RETURNING id, user_id, jira_access_token`,
		a.UserID, nullableString(a.JiraAccessToken),
	).Scan(&out.ID, &out.UserID, &token)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert account: %w", err)
	}
	out.JiraAccessToken = stringPtr(token)
	return &out, nil
}

func (s *SQLiteDB) FindAccount(ctx context.Context, userID string) (*Account, error) {
	var out Account
	var token sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, jira_access_token FROM accounts WHERE user_id = ?`, userID,
	).Scan(&out.ID, &out.UserID, &token)
	if err != nil {
		return nil, notFound(err, "account")
	}
	out.JiraAccessToken = stringPtr(token)
	return &out, nil
}

// ---- events ----

func (s *SQLiteDB) StoreEvent(ctx context.Context, e Event) (*Event, error) {
	payload := string(e.Payload)
	if payload == "" {
		payload = "{}"
	}
	var out Event
	var todoID sql.NullInt64
	var raw string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (project_id, issue_id, todo_id, type, payload)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, project_id, issue_id, todo_id, type, payload, created_at`,
		e.ProjectID, e.IssueID, nullableInt(e.TodoID), e.Type, payload,
	).Scan(&out.ID, &out.ProjectID, &out.IssueID, &todoID, &out.Type, &raw, timestamp{&out.CreatedAt})
	if err != nil {
		return nil, fmt.Errorf("failed to store event: %w", err)
	}
	out.TodoID = intPtr(todoID)
	out.Payload = []byte(raw)
	return &out, nil
}

func (s *SQLiteDB) ListEvents(ctx context.Context, projectID, issueID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, issue_id, todo_id, type, payload, created_at
		FROM events WHERE project_id = ? AND issue_id = ?
		ORDER BY id`, projectID, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var todoID sql.NullInt64
		var raw string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.IssueID, &todoID, &e.Type, &raw, timestamp{&e.CreatedAt}); err != nil {
			return nil, err
		}
		e.TodoID = intPtr(todoID)
		e.Payload = []byte(raw)
		events = append(events, e)
	}
	return events, rows.Err()
}
