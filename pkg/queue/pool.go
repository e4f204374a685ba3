package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/RogWilco/jacob/pkg/todos"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Creator is the todo creation entry point. *todos.Orchestrator satisfies it.
type Creator interface {
	GetOrCreate(ctx context.Context, p todos.CreateParams) todos.CreateResult
}

// PoolConfig configures a worker Pool.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	// Credential is used for every tracker call made by the workers.
	Credential string
	// StopWhenIdle makes Run return once no job is ready.
	StopWhenIdle bool
}

// Pool runs import jobs through a Creator with a fixed number of workers.
type Pool struct {
	queue   *Queue
	creator Creator
	cfg     PoolConfig
	logger  utils.ExtendedLogger
}

func NewPool(q *Queue, creator Creator, cfg PoolConfig, logger utils.ExtendedLogger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Pool{queue: q, creator: creator, cfg: cfg, logger: logger}
}

// Run processes jobs until ctx is cancelled, or until the queue has no
// ready job when StopWhenIdle is set. Cancellation is not an error.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		g.Go(func() error {
			return p.work(ctx, workerID)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) work(ctx context.Context, workerID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := p.queue.Next(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			if p.cfg.StopWhenIdle {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.cfg.PollInterval):
			}
			continue
		}

		if err := p.queue.Claim(ctx, job.ID, workerID); err != nil {
			if errors.Is(err, ErrAlreadyClaimed) {
				continue
			}
			return err
		}
		if err := p.process(ctx, job); err != nil {
			return err
		}
	}
}

// process runs one claimed job. Only queue bookkeeping errors are returned.
func (p *Pool) process(ctx context.Context, job *Job) error {
	log := p.logger.WithFields(utils.IssueFields(job.ProjectID, job.IssueNumber)).WithField("job_id", job.ID)

	res := p.creator.GetOrCreate(ctx, todos.CreateParams{
		Repo:         job.Repo,
		ProjectID:    job.ProjectID,
		IssueNumber:  job.IssueNumber,
		Credential:   p.cfg.Credential,
		AgentEnabled: job.AgentEnabled,
	})

	if res.Outcome == todos.Failed {
		reason := "todo creation failed"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		if _, err := p.queue.Fail(context.WithoutCancel(ctx), job.ID, reason); err != nil {
			return err
		}
		return nil
	}

	log.Infof("import finished: %s", res.Outcome)
	return p.queue.Complete(context.WithoutCancel(ctx), job.ID)
}
