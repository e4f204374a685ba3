package agents

import (
	"context"
	"fmt"

	"github.com/RogWilco/jacob/internal/extract"
)

// ExtractedIssue is the normalized form of a tracker issue.
type ExtractedIssue struct {
	CommitTitle         string   `json:"commitTitle" validate:"max=200" jsonschema:"description=Short imperative commit title"`
	StepsToAddressIssue []string `json:"stepsToAddressIssue" validate:"dive,required"`
	FilesToCreate       []string `json:"filesToCreate" validate:"dive,required"`
	FilesToUpdate       []string `json:"filesToUpdate" validate:"dive,required"`
}

// ExtractIssue normalizes issueText against the repository's source map.
func ExtractIssue(ctx context.Context, ext *extract.Extractor, sourceMap, issueText string) (*ExtractedIssue, error) {
	system, err := render(issueSystemTmpl, struct{ SourceMap string }{sourceMap})
	if err != nil {
		return nil, fmt.Errorf("failed to render issue prompt: %w", err)
	}
	issue, err := extract.Object[ExtractedIssue](ctx, ext, extract.Request{
		UserPrompt:   issueText,
		SystemPrompt: system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract issue: %w", err)
	}
	return &issue, nil
}
