// Package tracker reads and annotates issues in the external issue tracker.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v68/github"

	"github.com/RogWilco/jacob/pkg/snapshot"
	"github.com/RogWilco/jacob/pkg/utils"
)

var (
	ErrIssueNotFound  = errors.New("issue not found")
	ErrMissingToken   = errors.New("missing tracker credential")
	ErrTrackerRequest = errors.New("issue tracker request failed")
)

// Issue is the tracker-neutral view of an issue.
type Issue struct {
	ID     int64    `json:"id"`
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	State  string   `json:"state"`
	Author string   `json:"author"`
	URL    string   `json:"url"`
	Labels []string `json:"labels,omitempty"`
}

// Text is the issue as the agents read it.
func (i *Issue) Text() string {
	if i.Body == "" {
		return i.Title
	}
	return i.Title + "\n" + i.Body
}

// IssueUpdate is a partial issue edit; nil fields are left alone.
type IssueUpdate struct {
	Title *string
	Body  *string
}

// Tracker is implemented by issue tracker backends. The credential is
// supplied per call because each request acts on behalf of a caller.
type Tracker interface {
	GetIssue(ctx context.Context, credential, repoFullName string, number int) (*Issue, error)
	UpdateIssue(ctx context.Context, credential, repoFullName string, number int, update IssueUpdate) (*Issue, error)
}

// GitHub is the Tracker backed by the GitHub REST API.
type GitHub struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     utils.ExtendedLogger
}

type Option func(*GitHub)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(raw string) Option {
	return func(g *GitHub) {
		u, err := url.Parse(raw)
		if err != nil {
			g.logger.Warnf("ignoring invalid GitHub base URL %q: %v", raw, err)
			return
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		g.baseURL = u
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(g *GitHub) { g.httpClient = c }
}

func NewGitHub(logger utils.ExtendedLogger, opts ...Option) *GitHub {
	g := &GitHub{logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitHub) client(credential string) (*github.Client, error) {
	if credential == "" {
		return nil, ErrMissingToken
	}
	c := github.NewClient(g.httpClient).WithAuthToken(credential)
	if g.baseURL != nil {
		c.BaseURL = g.baseURL
	}
	return c, nil
}

func (g *GitHub) GetIssue(ctx context.Context, credential, repoFullName string, number int) (*Issue, error) {
	owner, repo, err := snapshot.SplitRepo(repoFullName)
	if err != nil {
		return nil, err
	}
	c, err := g.client(credential)
	if err != nil {
		return nil, err
	}

	issue, _, err := c.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapError(err, repoFullName, number)
	}
	return fromGitHub(issue), nil
}

func (g *GitHub) UpdateIssue(ctx context.Context, credential, repoFullName string, number int, update IssueUpdate) (*Issue, error) {
	owner, repo, err := snapshot.SplitRepo(repoFullName)
	if err != nil {
		return nil, err
	}
	c, err := g.client(credential)
	if err != nil {
		return nil, err
	}

	req := &github.IssueRequest{Title: update.Title, Body: update.Body}
	issue, _, err := c.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return nil, wrapError(err, repoFullName, number)
	}
	g.logger.Debugf("updated issue %s#%d", repoFullName, number)
	return fromGitHub(issue), nil
}

func wrapError(err error, repoFullName string, number int) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s#%d", ErrIssueNotFound, repoFullName, number)
	}
	return fmt.Errorf("%w: %s#%d: %w", ErrTrackerRequest, repoFullName, number, err)
}

func fromGitHub(i *github.Issue) *Issue {
	out := &Issue{
		ID:     i.GetID(),
		Number: i.GetNumber(),
		Title:  i.GetTitle(),
		Body:   i.GetBody(),
		State:  i.GetState(),
		URL:    i.GetHTMLURL(),
	}
	if i.User != nil {
		out.Author = i.User.GetLogin()
	}
	for _, l := range i.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}
