package server

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// createTodoRequest carries no filesystem inputs: HTTP callers always work
// on a fresh snapshot of the project repository.
type createTodoRequest struct {
	AgentEnabled *bool `json:"agentEnabled"`
}

type importRequest struct {
	Issues       []int `json:"issues" binding:"required,min=1,dive,min=1"`
	AgentEnabled bool  `json:"agentEnabled"`
	Priority     int   `json:"priority"`
}

type positionsRequest struct {
	IDs []int64 `json:"ids" binding:"required"`
}

type answersRequest struct {
	Answers map[int64]string `json:"answers" binding:"required"`
}
