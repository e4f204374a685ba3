// Package events persists typed todo lifecycle events.
package events

import (
	"context"
	"encoding/json"

	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Recorder writes events to the events table. A nil *Recorder discards
// everything, so components may treat recording as optional.
type Recorder struct {
	db     database.Database
	logger utils.ExtendedLogger
}

func NewRecorder(db database.Database, logger utils.ExtendedLogger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record stores one event. Events are non-critical: a payload that cannot
// be encoded or a failed write is logged at warn level and dropped.
func (r *Recorder) Record(ctx context.Context, id Identity, eventType EventType, payload any) {
	if r == nil {
		return
	}
	log := r.logger.WithFields(utils.IssueFields(id.ProjectID, int(id.IssueID)))
	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Warnf("failed to marshal %s payload", eventType)
		return
	}
	_, err = r.db.StoreEvent(ctx, database.Event{
		ProjectID: id.ProjectID,
		IssueID:   id.IssueID,
		TodoID:    id.TodoID,
		Type:      string(eventType),
		Payload:   raw,
	})
	if err != nil {
		log.WithError(err).Warnf("failed to record %s event", eventType)
	}
}

// List returns the events recorded for an issue, oldest first.
func (r *Recorder) List(ctx context.Context, projectID, issueID int64) ([]database.Event, error) {
	if r == nil {
		return nil, nil
	}
	return r.db.ListEvents(ctx, projectID, issueID)
}
