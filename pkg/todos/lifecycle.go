package todos

import (
	"context"
	"fmt"
	"strings"

	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/tracker"
	"github.com/RogWilco/jacob/pkg/utils"
)

// MentionBody returns body with BotMention appended on its own line.
// A body that already mentions the bot is returned unchanged.
func MentionBody(body string) (string, bool) {
	if strings.Contains(body, BotMention) {
		return body, false
	}
	return body + "\n" + BotMention, true
}

// StartWork hands a todo's issue to the coding agent and marks the todo
// IN_PROGRESS. Only a non-archived TODO can be started. The issue is annotated first: when annotation fails the
// status is left alone. Annotation is idempotent, so callers may retry
// after any error.
func (o *Orchestrator) StartWork(ctx context.Context, todoID int64, credential string) (*database.Todo, error) {
	if credential == "" {
		return nil, ErrMissingCredential
	}
	todo, err := o.deps.DB.GetTodo(ctx, todoID)
	if err != nil {
		return nil, err
	}
	if todo.IssueID == nil {
		return nil, fmt.Errorf("%w: todo %d", ErrNoIssue, todoID)
	}
	if todo.IsArchived {
		return nil, fmt.Errorf("%w: todo %d is archived", ErrInvalidTransition, todoID)
	}
	if todo.Status != database.TodoStatusTodo {
		return nil, fmt.Errorf("%w: todo %d is %s", ErrInvalidTransition, todoID, todo.Status)
	}
	project, err := o.deps.DB.GetProject(ctx, todo.ProjectID)
	if err != nil {
		return nil, err
	}
	number := int(*todo.IssueID)
	log := o.deps.Logger.WithFields(utils.IssueFields(todo.ProjectID, number)).WithField("todo_id", todo.ID)

	issue, err := o.tracker.GetIssue(ctx, credential, project.RepoFullName, number)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue: %w", err)
	}
	if body, changed := MentionBody(issue.Body); changed {
		if _, err := o.tracker.UpdateIssue(ctx, credential, project.RepoFullName, number, tracker.IssueUpdate{Body: &body}); err != nil {
			log.WithError(err).Error("failed to annotate issue")
			return nil, fmt.Errorf("failed to annotate issue: %w", err)
		}
	}

	status := database.TodoStatusInProgress
	updated, err := o.deps.DB.UpdateTodo(ctx, todo.ID, database.TodoUpdate{Status: &status})
	if err != nil {
		log.WithError(err).Error("issue annotated but status update failed")
		return nil, fmt.Errorf("failed to update todo status: %w", err)
	}

	log.Info("work started")
	o.deps.Events.Record(ctx, events.ForTodo(todo.ProjectID, *todo.IssueID, todo.ID), events.WorkStarted,
		events.TodoPayload{Name: updated.Name, Status: string(updated.Status)})
	return updated, nil
}

// ArchiveByIssue archives every todo of an issue and returns how many
// rows changed. Zero matches is success. Errors are logged and returned
// with a zero count, so callers that ignore the error are unaffected.
func (o *Orchestrator) ArchiveByIssue(ctx context.Context, issueID, projectID int64) (int64, error) {
	log := o.deps.Logger.WithFields(utils.IssueFields(projectID, int(issueID)))
	n, err := o.deps.DB.ArchiveTodosByIssue(ctx, projectID, issueID)
	if err != nil {
		log.WithError(err).Errorf("error while archiving todos for issue #%d", issueID)
		return 0, err
	}
	log.Infof("archived %d todos for issue #%d", n, issueID)
	if n > 0 {
		o.deps.Events.Record(ctx, events.Identity{ProjectID: projectID, IssueID: issueID}, events.TodoArchived, events.TodoPayload{Count: n})
	}
	return n, nil
}

// SubmitAnswers stores owner answers keyed by research item id. Only items
// belonging to the todo and issue are updated.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, todoID, issueID int64, answers map[int64]string) error {
	for id, answer := range answers {
		if err := o.deps.DB.UpdateResearchAnswer(ctx, id, todoID, issueID, answer); err != nil {
			return fmt.Errorf("research item %d: %w", id, err)
		}
	}
	return nil
}
