package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/sourcemap"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Research item types.
const (
	ResearchCodebase = "ResearchCodebase"
	ResearchInternet = "ResearchInternet"
	AskProjectOwner  = "AskProjectOwner"
	ResearchComplete = "ResearchComplete"
	ProjectResearch  = "ProjectResearch"
)

type researchItem struct {
	Type     string `json:"type" validate:"required,oneof=ResearchCodebase ResearchInternet AskProjectOwner" jsonschema:"enum=ResearchCodebase,enum=ResearchInternet,enum=AskProjectOwner"`
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer"`
}

type projectQuestion struct {
	Question string `json:"question" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
}

// ResearchInput identifies the issue to research. SourceMap is optional;
// when empty it is built from RootPath.
type ResearchInput struct {
	TodoID    int64
	IssueID   int64
	ProjectID int64
	IssueText string
	RootPath  string
	SourceMap string
}

type Researcher struct {
	Deps
}

func NewResearcher(deps Deps) *Researcher {
	return &Researcher{Deps: deps}
}

// GetOrCreate returns the research of an issue, generating it on first use.
func (r *Researcher) GetOrCreate(ctx context.Context, in ResearchInput) ([]database.Research, error) {
	scope := database.ResearchScope{TodoID: in.TodoID, IssueID: in.IssueID, ProjectID: in.ProjectID}
	existing, err := r.DB.ListResearch(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	sm, err := SourceMap(in.RootPath, in.SourceMap)
	if err != nil {
		return nil, err
	}
	system, err := render(researchSystemTmpl, struct{ SourceMap string }{sm})
	if err != nil {
		return nil, fmt.Errorf("failed to render research prompt: %w", err)
	}
	items, err := extract.List[researchItem](ctx, r.Extractor, extract.Request{
		UserPrompt:   in.IssueText,
		SystemPrompt: system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to research issue: %w", err)
	}

	rows := make([]database.NewResearch, 0, len(items))
	for _, item := range items {
		rows = append(rows, database.NewResearch{Type: item.Type, Question: item.Question, Answer: item.Answer})
	}
	// An empty scope would be regenerated on every call.
	if len(rows) == 0 {
		rows = append(rows, database.NewResearch{Type: ResearchComplete, Question: "No open questions for this issue."})
	}

	stored, created, err := r.DB.InsertResearchOnce(ctx, scope, rows)
	if err != nil {
		return nil, err
	}
	log := r.Logger.WithFields(utils.IssueFields(in.ProjectID, int(in.IssueID)))
	if created {
		log.Infof("stored %d research items", len(stored))
		r.Events.Record(ctx, events.ForTodo(in.ProjectID, in.IssueID, in.TodoID), events.ResearchCreated, events.AgentPayload{Items: len(stored)})
	} else {
		log.Info("research was stored concurrently, discarding generated items")
	}
	return stored, nil
}

// GetOrCreateProjectResearch returns the project-wide orientation research,
// generating it from the codebase context on first use.
func (r *Researcher) GetOrCreateProjectResearch(ctx context.Context, projectID int64, items []sourcemap.ContextItem) ([]database.Research, error) {
	scope := database.ProjectScope(projectID)
	existing, err := r.DB.ListResearch(ctx, scope)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	system, err := render(projectResearchSystemTmpl, struct {
		TotalFiles int
		Context    string
	}{len(items), formatContext(items)})
	if err != nil {
		return nil, fmt.Errorf("failed to render project research prompt: %w", err)
	}
	answers, err := extract.List[projectQuestion](ctx, r.Extractor, extract.Request{
		UserPrompt:   "Write the orientation brief for this project.",
		SystemPrompt: system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to research project: %w", err)
	}

	rows := make([]database.NewResearch, 0, len(answers))
	for _, a := range answers {
		rows = append(rows, database.NewResearch{Type: ProjectResearch, Question: a.Question, Answer: a.Answer})
	}
	if len(rows) == 0 {
		rows = append(rows, database.NewResearch{Type: ResearchComplete, Question: "No project research available."})
	}

	stored, created, err := r.DB.InsertResearchOnce(ctx, scope, rows)
	if err != nil {
		return nil, err
	}
	if created {
		r.Logger.WithField("project_id", projectID).Infof("stored %d project research items", len(stored))
		r.Events.Record(ctx, events.Identity{ProjectID: projectID}, events.ResearchCreated, events.AgentPayload{Items: len(stored)})
	}
	return stored, nil
}

// FormatResearch renders research as question and answer blocks.
func FormatResearch(items []database.Research) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Question+"\n"+item.Answer)
	}
	return strings.Join(parts, "\n\n")
}

func formatContext(items []sourcemap.ContextItem) string {
	var b strings.Builder
	for _, item := range items {
		fmt.Fprintf(&b, "%s: %s\n", item.File, item.Overview)
	}
	return b.String()
}
