// Package board posts todo back-links to external issue boards.
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RogWilco/jacob/pkg/utils"
)

var (
	ErrMissingCredentials = errors.New("board credentials not found")
	ErrLinkFailed         = errors.New("board back-link failed")
)

// DefaultJiraAPIBase is the Atlassian cloud gateway.
const DefaultJiraAPIBase = "https://api.atlassian.com"

// BoardLink is everything needed to comment a todo link onto a board issue.
type BoardLink struct {
	CloudID     string
	IssueID     string
	AccessToken string
	TodoURL     string
}

// Linker writes a todo link back to the board issue a todo came from.
type Linker interface {
	LinkTodo(ctx context.Context, link BoardLink) error
}

// TodoURL is the dashboard address of a todo.
func TodoURL(appURL, repoFullName string, todoID int64) string {
	return fmt.Sprintf("%s/dashboard/%s/todos/%d", strings.TrimSuffix(appURL, "/"), repoFullName, todoID)
}

// JiraLinker comments on Jira Cloud issues.
type JiraLinker struct {
	apiBase    string
	httpClient *http.Client
	logger     utils.ExtendedLogger
}

func NewJiraLinker(apiBase string, httpClient *http.Client, logger utils.ExtendedLogger) *JiraLinker {
	if apiBase == "" {
		apiBase = DefaultJiraAPIBase
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &JiraLinker{apiBase: strings.TrimSuffix(apiBase, "/"), httpClient: httpClient, logger: logger}
}

// Atlassian document format, only the nodes a link comment needs.
type adfNode struct {
	Type    string    `json:"type"`
	Version int       `json:"version,omitempty"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
	Marks   []adfMark `json:"marks,omitempty"`
}

type adfMark struct {
	Type  string            `json:"type"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

func commentBody(todoURL string) map[string]any {
	return map[string]any{
		"body": adfNode{
			Type:    "doc",
			Version: 1,
			Content: []adfNode{{
				Type: "paragraph",
				Content: []adfNode{
					{Type: "text", Text: "JACoB created a todo for this issue: "},
					{
						Type:  "text",
						Text:  todoURL,
						Marks: []adfMark{{Type: "link", Attrs: map[string]string{"href": todoURL}}},
					},
				},
			}},
		},
	}
}

func (j *JiraLinker) LinkTodo(ctx context.Context, link BoardLink) error {
	if link.AccessToken == "" || link.CloudID == "" || link.IssueID == "" {
		return ErrMissingCredentials
	}

	payload, err := json.Marshal(commentBody(link.TodoURL))
	if err != nil {
		return fmt.Errorf("failed to marshal comment: %w", err)
	}

	endpoint := fmt.Sprintf("%s/ex/jira/%s/rest/api/3/issue/%s/comment", j.apiBase, link.CloudID, link.IssueID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+link.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: jira issue %s: status %d: %s", ErrLinkFailed, link.IssueID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	j.logger.Infof("linked todo %s to jira issue %s", link.TodoURL, link.IssueID)
	return nil
}
