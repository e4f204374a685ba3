package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RogWilco/jacob/internal/extract"
	"github.com/RogWilco/jacob/pkg/database"
	"github.com/RogWilco/jacob/pkg/events"
	"github.com/RogWilco/jacob/pkg/sourcemap"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Evaluation is the stored estimate of how well an agent can handle an issue.
type Evaluation struct {
	Difficulty           int      `json:"difficulty" yaml:"difficulty" validate:"min=1,max=10"`
	Confidence           int      `json:"confidence" yaml:"confidence" validate:"min=1,max=10"`
	Summary              string   `json:"summary" yaml:"summary" validate:"required"`
	Risks                []string `json:"risks" yaml:"risks,omitempty"`
	RecommendedNextSteps []string `json:"recommendedNextSteps" yaml:"recommended_next_steps,omitempty"`
}

// EvaluationResult is not Ready while the issue has no plan yet.
type EvaluationResult struct {
	Ready      bool        `json:"ready"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

type EvaluationInput struct {
	TodoID      int64
	ProjectID   int64
	IssueNumber int64
	IssueText   string
	RootPath    string
}

type Evaluator struct {
	Deps
}

func NewEvaluator(deps Deps) *Evaluator {
	return &Evaluator{Deps: deps}
}

// GetOrCreate returns the cached evaluation of a todo or generates one.
// Without plan steps it returns a not-ready result and never calls the model.
func (e *Evaluator) GetOrCreate(ctx context.Context, in EvaluationInput) (EvaluationResult, error) {
	todo, err := e.DB.GetTodo(ctx, in.TodoID)
	if err != nil {
		return EvaluationResult{}, err
	}
	if len(todo.EvaluationData) > 0 {
		var cached Evaluation
		if err := json.Unmarshal(todo.EvaluationData, &cached); err == nil {
			return EvaluationResult{Ready: true, Evaluation: &cached}, nil
		}
		e.Logger.Warnf("todo %d has unreadable evaluation data, regenerating", in.TodoID)
	}

	steps, err := e.DB.ListPlanSteps(ctx, in.ProjectID, in.IssueNumber)
	if err != nil {
		return EvaluationResult{}, err
	}
	if len(steps) == 0 {
		return EvaluationResult{Ready: false}, nil
	}

	research, err := e.DB.ListResearch(ctx, database.ResearchScope{TodoID: in.TodoID, IssueID: in.IssueNumber, ProjectID: in.ProjectID})
	if err != nil {
		return EvaluationResult{}, err
	}
	contextItems, err := e.StoredCodebaseContext(ctx, in.ProjectID)
	if err != nil {
		return EvaluationResult{}, err
	}
	if len(contextItems) == 0 && in.RootPath != "" {
		files, err := sourcemap.Traverse(in.RootPath, sourcemap.RepoSettings{})
		if err != nil {
			return EvaluationResult{}, err
		}
		if contextItems, err = sourcemap.ContextItems(in.RootPath, files); err != nil {
			return EvaluationResult{}, err
		}
	}

	system, err := render(evaluationSystemTmpl, struct {
		TotalFiles              int
		Plan, Research, Context string
	}{len(contextItems), formatPlan(steps), FormatResearch(research), formatContext(contextItems)})
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("failed to render evaluation prompt: %w", err)
	}
	eval, err := extract.Object[Evaluation](ctx, e.Extractor, extract.Request{
		UserPrompt:   in.IssueText,
		SystemPrompt: system,
	})
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("failed to evaluate issue: %w", err)
	}

	raw, err := json.Marshal(eval)
	if err != nil {
		return EvaluationResult{}, err
	}
	if err := e.DB.SetTodoEvaluation(ctx, in.TodoID, raw); err != nil {
		return EvaluationResult{}, err
	}
	e.Logger.WithFields(utils.IssueFields(in.ProjectID, int(in.IssueNumber))).
		Infof("stored evaluation for todo %d (difficulty %d)", in.TodoID, eval.Difficulty)
	e.Events.Record(ctx, events.ForTodo(in.ProjectID, in.IssueNumber, in.TodoID), events.EvaluationCreated, events.AgentPayload{Items: len(steps)})

	return EvaluationResult{Ready: true, Evaluation: &eval}, nil
}

func formatPlan(steps []database.PlanStep) string {
	var b strings.Builder
	for _, s := range steps {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)\n   %s\n", s.StepOrder, s.Type, s.Title, s.FilePath, s.Instructions)
		if s.ExitCriteria != "" {
			fmt.Fprintf(&b, "   Exit criteria: %s\n", s.ExitCriteria)
		}
	}
	return b.String()
}
