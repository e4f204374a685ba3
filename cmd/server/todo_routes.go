package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/queue"
	"github.com/RogWilco/jacob/pkg/todos"
)

func (h *handlers) listTodos(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	list, err := h.app.DB.ListTodos(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Found %d todos", len(list)),
		Data:    list,
	})
}

func (h *handlers) projectResearch(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	items, err := h.app.DB.ListResearch(c.Request.Context(), database.ProjectScope(projectID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Project research", Data: items})
}

// createTodoFromIssue runs the orchestrator for one tracked issue.
func (h *handlers) createTodoFromIssue(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	number, ok := pathID(c, "issueNumber")
	if !ok {
		return
	}
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	project, err := h.app.DB.GetProject(ctx, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	agentEnabled := h.app.Config.AgentEnabled
	if req.AgentEnabled != nil {
		agentEnabled = *req.AgentEnabled
	}

	res := h.app.Orchestrator.GetOrCreate(ctx, todos.CreateParams{
		Repo:         project.RepoFullName,
		ProjectID:    projectID,
		IssueNumber:  int(number),
		Credential:   credential(c),
		AgentEnabled: agentEnabled,
	})

	data := gin.H{"outcome": res.Outcome.String(), "todo": res.Todo}
	switch res.Outcome {
	case todos.Created:
		c.JSON(http.StatusCreated, APIResponse{Success: true, Message: "Todo created", Data: data})
	case todos.AlreadyExists:
		c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo already exists", Data: data})
	default:
		err := res.Err
		if err == nil {
			err = errors.New("todo creation failed")
		}
		c.JSON(statusFor(err), APIResponse{
			Success: false,
			Message: "Failed to create todo",
			Data:    data,
			Error:   err.Error(),
		})
	}
}

func (h *handlers) archiveByIssue(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	issueID, ok := pathID(c, "issueNumber")
	if !ok {
		return
	}
	n, err := h.app.Orchestrator.ArchiveByIssue(c.Request.Context(), issueID, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Archived %d todos", n),
		Data:    gin.H{"archived": n},
	})
}

// importIssues queues one job per issue for the background workers.
func (h *handlers) importIssues(c *gin.Context) {
	projectID, ok := pathID(c, "projectId")
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	project, err := h.app.DB.GetProject(ctx, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	jobs := make([]*queue.Job, 0, len(req.Issues))
	for _, number := range req.Issues {
		job, err := h.app.Queue.Enqueue(ctx, queue.NewJob{
			ProjectID:    projectID,
			Repo:         project.RepoFullName,
			IssueNumber:  number,
			AgentEnabled: req.AgentEnabled,
			Priority:     req.Priority,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		jobs = append(jobs, job)
	}
	c.JSON(http.StatusAccepted, APIResponse{
		Success: true,
		Message: fmt.Sprintf("Queued %d issues", len(jobs)),
		Data:    jobs,
	})
}

func (h *handlers) createTodo(c *gin.Context) {
	var req database.NewTodo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		badRequest(c, "Invalid status", fmt.Errorf("unknown status %q", req.Status))
		return
	}
	todo, err := h.app.DB.InsertTodo(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, APIResponse{Success: true, Message: "Todo created", Data: todo})
}

func (h *handlers) updatePositions(c *gin.Context) {
	var req positionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := h.app.DB.UpdateTodoPositions(c.Request.Context(), req.IDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Positions updated"})
}

func (h *handlers) todoByIssue(c *gin.Context) {
	issueID, ok := pathID(c, "issueId")
	if !ok {
		return
	}
	todo, err := h.app.DB.FindTodoByIssueID(c.Request.Context(), issueID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo found", Data: todo})
}

func (h *handlers) getTodo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	todo, err := h.app.DB.GetTodo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo found", Data: todo})
}

func (h *handlers) updateTodo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req database.TodoUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if req.Status != nil && !req.Status.Valid() {
		badRequest(c, "Invalid status", fmt.Errorf("unknown status %q", *req.Status))
		return
	}
	todo, err := h.app.DB.UpdateTodo(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo updated", Data: todo})
}

func (h *handlers) deleteTodo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.app.DB.DeleteTodo(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo deleted"})
}

func (h *handlers) archiveTodo(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	todo, err := h.app.DB.ArchiveTodo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo archived", Data: todo})
}

// issueTodo loads a todo that must be linked to an issue.
func (h *handlers) issueTodo(c *gin.Context) (*database.Todo, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	todo, err := h.app.DB.GetTodo(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if todo.IssueID == nil {
		respondError(c, fmt.Errorf("%w: todo %d", todos.ErrNoIssue, id))
		return nil, false
	}
	return todo, true
}

func (h *handlers) todoResearch(c *gin.Context) {
	todo, ok := h.issueTodo(c)
	if !ok {
		return
	}
	items, err := h.app.DB.ListResearch(c.Request.Context(), database.ResearchScope{
		TodoID:    todo.ID,
		IssueID:   *todo.IssueID,
		ProjectID: todo.ProjectID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Todo research", Data: items})
}

func (h *handlers) submitAnswers(c *gin.Context) {
	todo, ok := h.issueTodo(c)
	if !ok {
		return
	}
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}
	if err := h.app.Orchestrator.SubmitAnswers(c.Request.Context(), todo.ID, *todo.IssueID, req.Answers); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: fmt.Sprintf("Stored %d answers", len(req.Answers))})
}

func (h *handlers) evaluation(c *gin.Context) {
	todo, ok := h.issueTodo(c)
	if !ok {
		return
	}
	res, err := h.app.Evaluator.GetOrCreate(c.Request.Context(), agents.EvaluationInput{
		TodoID:      todo.ID,
		ProjectID:   todo.ProjectID,
		IssueNumber: *todo.IssueID,
		IssueText:   todo.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	message := "Evaluation ready"
	if !res.Ready {
		message = "Plan not ready yet"
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: message, Data: res})
}

func (h *handlers) startWork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	todo, err := h.app.Orchestrator.StartWork(c.Request.Context(), id, credential(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Work started", Data: todo})
}

func (h *handlers) queueStats(c *gin.Context) {
	stats, err := h.app.Queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Message: "Queue stats", Data: stats})
}
