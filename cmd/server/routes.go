package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RogWilco/jacob/pkg/app"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/todos"
	"github.com/RogWilco/jacob/pkg/tracker"
)

const credentialKey = "credential"

type handlers struct {
	app *app.App
}

// NewRouter registers every API route on a fresh gin engine.
func NewRouter(a *app.App) *gin.Engine {
	h := &handlers{app: a}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	r.GET("/health", h.health)

	api := r.Group("/api")
	api.Use(credentialMiddleware(a.Config.GitHubToken))
	{
		projects := api.Group("/projects/:projectId")
		{
			projects.GET("/todos", h.listTodos)
			projects.GET("/research", h.projectResearch)
			projects.POST("/issues/:issueNumber/todo", h.createTodoFromIssue)
			projects.POST("/issues/:issueNumber/archive", h.archiveByIssue)
			projects.POST("/import", h.importIssues)
		}

		todoRoutes := api.Group("/todos")
		{
			todoRoutes.POST("", h.createTodo)
			todoRoutes.PUT("/positions", h.updatePositions)
			todoRoutes.GET("/by-issue/:issueId", h.todoByIssue)
			todoRoutes.GET("/:id", h.getTodo)
			todoRoutes.PATCH("/:id", h.updateTodo)
			todoRoutes.DELETE("/:id", h.deleteTodo)
			todoRoutes.POST("/:id/archive", h.archiveTodo)
			todoRoutes.GET("/:id/research", h.todoResearch)
			todoRoutes.POST("/:id/answers", h.submitAnswers)
			todoRoutes.GET("/:id/evaluation", h.evaluation)
			todoRoutes.POST("/:id/start", h.startWork)
		}

		api.GET("/queue/stats", h.queueStats)
	}

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// credentialMiddleware takes the tracker credential from a bearer token,
// falling back to the configured token.
func credentialMiddleware(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred := fallback
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			cred = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
		c.Set(credentialKey, cred)
		c.Next()
	}
}

func credential(c *gin.Context) string {
	return c.GetString(credentialKey)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, tracker.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.Is(err, database.ErrDuplicate), errors.Is(err, todos.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, todos.ErrInvalidRepo),
		errors.Is(err, todos.ErrMissingCredential),
		errors.Is(err, todos.ErrNoIssue),
		errors.Is(err, tracker.ErrMissingToken):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), APIResponse{
		Success: false,
		Message: "Request failed",
		Error:   err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	resp := APIResponse{Success: false, Message: message}
	if err != nil {
		resp.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

// pathID parses an integer path parameter, answering 400 when it is not one.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}

func (h *handlers) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "healthy", "service": "jacob-api"}
	if err := h.app.DB.Ping(c.Request.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}
	c.JSON(status, body)
}
