// Package langchainadapter exposes a langchaingo model as an llmtypes.Model.
package langchainadapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/RogWilco/jacob/internal/llmtypes"
	"github.com/RogWilco/jacob/pkg/utils"
)

// Generator is the part of llms.Model the adapter calls.
type Generator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Adapter struct {
	model   Generator
	modelID string
	logger  utils.ExtendedLogger
}

func New(model Generator, modelID string, logger utils.ExtendedLogger) *Adapter {
	return &Adapter{model: model, modelID: modelID, logger: logger}
}

func (a *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	converted := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, llms.TextParts(toRole(msg.Role), msg.Text()))
	}

	resp, err := a.model.GenerateContent(ctx, converted, callOpts...)
	if err != nil {
		if isRateLimit(err) {
			return nil, fmt.Errorf("langchain generate content: %w: %v", llmtypes.ErrRateLimited, err)
		}
		a.logger.Errorf("langchain generate content failed - model: %s, error: %v", a.modelID, err)
		return nil, fmt.Errorf("langchain generate content: %w", err)
	}

	out := &llmtypes.ContentResponse{Choices: make([]*llmtypes.ContentChoice, 0, len(resp.Choices))}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, &llmtypes.ContentChoice{Content: c.Content, StopReason: c.StopReason})
	}
	return out, nil
}

func toRole(role llmtypes.ChatMessageType) llms.ChatMessageType {
	switch role {
	case llmtypes.ChatMessageTypeSystem:
		return llms.ChatMessageTypeSystem
	case llmtypes.ChatMessageTypeAI:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func isRateLimit(err error) bool {
	if llms.IsRateLimitError(err) || llms.IsRateLimitError(anthropic.MapError(err)) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
