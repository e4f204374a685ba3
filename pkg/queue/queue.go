// Package queue is a SQLite-backed job queue for batch issue imports.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Status is the state of a job row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MaxRetries is the number of failures after which a job is no longer retried.
const MaxRetries = 3

const sqlTimeLayout = "2006-01-02 15:04:05"

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrAlreadyClaimed = errors.New("job not found or already claimed")
)

// Job imports one tracked issue.
type Job struct {
	ID           string    `json:"id"`
	ProjectID    int64     `json:"project_id"`
	Repo         string    `json:"repo"`
	IssueNumber  int       `json:"issue_number"`
	AgentEnabled bool      `json:"agent_enabled"`
	Status       Status    `json:"status"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ProcessAfter time.Time `json:"process_after"`
	Error        string    `json:"error,omitempty"`
	Retries      int       `json:"retries"`
	WorkerID     string    `json:"worker_id,omitempty"`
}

// NewJob holds the fields supplied on enqueue. A zero ProcessAfter means now.
type NewJob struct {
	ProjectID    int64
	Repo         string
	IssueNumber  int
	AgentEnabled bool
	Priority     int
	ProcessAfter time.Time
}

// Queue stores jobs in the jobs table of the application database.
type Queue struct {
	db     *sql.DB
	logger utils.ExtendedLogger

	// RetryDelay is multiplied by the retry count to postpone failed jobs.
	RetryDelay time.Duration
	now        func() time.Time
}

func New(db database.Database, logger utils.ExtendedLogger) *Queue {
	return &Queue{db: db.DB(), logger: logger, RetryDelay: 30 * time.Second, now: time.Now}
}

func (q *Queue) stamp(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

const jobColumns = `id, project_id, repo, issue_number, agent_enabled, status, priority, created_at, updated_at, process_after, error, retries, worker_id`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	job := &Job{}
	var status string
	var errorStr, workerID sql.NullString
	err := row.Scan(&job.ID, &job.ProjectID, &job.Repo, &job.IssueNumber, &job.AgentEnabled, &status, &job.Priority,
		&job.CreatedAt, &job.UpdatedAt, &job.ProcessAfter, &errorStr, &job.Retries, &workerID)
	if err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.Error = errorStr.String
	job.WorkerID = workerID.String
	return job, nil
}

// Enqueue adds a pending job and returns it.
func (q *Queue) Enqueue(ctx context.Context, nj NewJob) (*Job, error) {
	now := q.now()
	after := nj.ProcessAfter
	if after.IsZero() {
		after = now
	}
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO jobs (id, project_id, repo, issue_number, agent_enabled, status, priority, created_at, updated_at, process_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nj.ProjectID, nj.Repo, nj.IssueNumber, nj.AgentEnabled, StatusPending, nj.Priority,
		q.stamp(now), q.stamp(now), q.stamp(after))
	if err != nil {
		return nil, fmt.Errorf("failed to add job: %w", err)
	}
	q.logger.Debugf("added job %s for %s#%d (priority %d)", id, nj.Repo, nj.IssueNumber, nj.Priority)
	return q.Get(ctx, id)
}

func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	job, err := scanJob(q.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// Next returns the highest priority job that is ready to run, or nil.
// Failed jobs with retries left are ready again once their delay passed.
func (q *Queue) Next(ctx context.Context) (*Job, error) {
	job, err := scanJob(q.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE (status = ? OR (status = ? AND retries < ?)) AND process_after <= ?
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`,
		StatusPending, StatusFailed, MaxRetries, q.stamp(q.now())))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next job: %w", err)
	}
	return job, nil
}

// Claim marks a ready job as processing by workerID. Losing a race to
// another worker yields ErrAlreadyClaimed.
func (q *Queue) Claim(ctx context.Context, id, workerID string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, worker_id = ?, updated_at = ?
		WHERE id = ? AND (status = ? OR (status = ? AND retries < ?))`,
		StatusProcessing, workerID, q.stamp(q.now()), id, StatusPending, StatusFailed, MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyClaimed, id)
	}
	q.logger.Debugf("worker %s claimed job %s", workerID, id)
	return nil
}

func (q *Queue) Complete(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		StatusCompleted, q.stamp(q.now()), id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}

// Fail records a failure. The job is retried after RetryDelay times its
// retry count until MaxRetries is reached; permanent reports the latter.
func (q *Queue) Fail(ctx context.Context, id, reason string) (permanent bool, err error) {
	var retries int
	err = q.db.QueryRowContext(ctx, `SELECT retries FROM jobs WHERE id = ?`, id).Scan(&retries)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get retry count: %w", err)
	}

	retries++
	now := q.now()
	after := now.Add(time.Duration(retries) * q.RetryDelay)
	_, err = q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, retries = ?, worker_id = NULL, updated_at = ?, process_after = ?
		WHERE id = ?`,
		StatusFailed, reason, retries, q.stamp(now), q.stamp(after), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job as failed: %w", err)
	}

	permanent = retries >= MaxRetries
	if permanent {
		q.logger.Warnf("job %s permanently failed after %d attempts: %s", id, retries, reason)
	} else {
		q.logger.Infof("job %s failed (attempt %d/%d), will retry: %s", id, retries, MaxRetries, reason)
	}
	return permanent, nil
}

// ResetStuck returns jobs processing for longer than timeout to pending.
func (q *Queue) ResetStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	now := q.now()
	res, err := q.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, worker_id = NULL, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		StatusPending, q.stamp(now), StatusProcessing, q.stamp(now.Add(-timeout)))
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		q.logger.Infof("reset %d jobs stuck in processing for more than %v", n, timeout)
	}
	return n, nil
}

// Cleanup deletes completed jobs last updated before olderThan ago.
func (q *Queue) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM jobs WHERE status = ? AND updated_at < ?`,
		StatusCompleted, q.stamp(q.now().Add(-olderThan)))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats counts jobs per status.
func (q *Queue) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	defer rows.Close()

	stats := map[Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[Status(status)] = count
	}
	return stats, rows.Err()
}
