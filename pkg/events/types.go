package events

// EventType names a todo lifecycle event.
type EventType string

const (
	// Todo events
	TodoCreated  EventType = "todo_created"
	TodoExists   EventType = "todo_exists"
	TodoFailed   EventType = "todo_failed"
	TodoArchived EventType = "todo_archived"
	WorkStarted  EventType = "work_started"

	// Agent events
	ResearchCreated   EventType = "research_created"
	PlanCreated       EventType = "plan_created"
	EvaluationCreated EventType = "evaluation_created"
)

// Identity places an event on a project issue, and optionally a todo.
type Identity struct {
	ProjectID int64
	IssueID   int64
	TodoID    *int64
}

// ForTodo returns an Identity carrying todoID.
func ForTodo(projectID, issueID, todoID int64) Identity {
	return Identity{ProjectID: projectID, IssueID: issueID, TodoID: &todoID}
}

// TodoPayload is the payload of todo_* and work_started events.
type TodoPayload struct {
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
	Count  int64  `json:"count,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// AgentPayload is the payload of agent output events.
type AgentPayload struct {
	Items int    `json:"items"`
	Model string `json:"model,omitempty"`
}
