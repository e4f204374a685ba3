package agents

import (
	"context"
	"fmt"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Plan step types.
const (
	EditExistingCode = "EditExistingCode"
	CreateNewCode    = "CreateNewCode"
)

type planStep struct {
	Type         string `json:"type" validate:"required,oneof=EditExistingCode CreateNewCode" jsonschema:"enum=EditExistingCode,enum=CreateNewCode"`
	Title        string `json:"title" validate:"required"`
	Instructions string `json:"instructions" validate:"required"`
	FilePath     string `json:"filePath" validate:"required"`
	ExitCriteria string `json:"exitCriteria"`
}

// PlanInput identifies the issue to plan. Research, when set, is added to
// the prompt.
type PlanInput struct {
	ProjectID   int64
	IssueNumber int64
	IssueText   string
	RootPath    string
	SourceMap   string
	Research    string
}

type Planner struct {
	Deps
}

func NewPlanner(deps Deps) *Planner {
	return &Planner{Deps: deps}
}

// GetOrCreate returns the plan of an issue, generating it on first use.
func (p *Planner) GetOrCreate(ctx context.Context, in PlanInput) ([]database.PlanStep, error) {
	existing, err := p.DB.ListPlanSteps(ctx, in.ProjectID, in.IssueNumber)
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
	system, err := render(planSystemTmpl, struct{ SourceMap, Research string }{sm, in.Research})
	if err != nil {
		return nil, fmt.Errorf("failed to render plan prompt: %w", err)
	}
	steps, err := extract.List[planStep](ctx, p.Extractor, extract.Request{
		UserPrompt:   in.IssueText,
		SystemPrompt: system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to plan issue: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("failed to plan issue: model returned no steps")
	}

	rows := make([]database.NewPlanStep, 0, len(steps))
	for _, s := range steps {
		rows = append(rows, database.NewPlanStep{
			Type:         s.Type,
			Title:        s.Title,
			Instructions: s.Instructions,
			FilePath:     s.FilePath,
			ExitCriteria: s.ExitCriteria,
		})
	}

	stored, created, err := p.DB.InsertPlanStepsOnce(ctx, in.ProjectID, in.IssueNumber, rows)
	if err != nil {
		return nil, err
	}
	if created {
		p.Logger.WithFields(utils.IssueFields(in.ProjectID, int(in.IssueNumber))).Infof("stored plan with %d steps", len(stored))
		p.Events.Record(ctx, events.Identity{ProjectID: in.ProjectID, IssueID: in.IssueNumber}, events.PlanCreated, events.AgentPayload{Items: len(stored)})
	}
	return stored, nil
}
