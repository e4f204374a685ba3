package openaiadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"

	"github.com/RogWilco/jacob/internal/llmtypes"
	"github.com/RogWilco/jacob/pkg/utils"
)

// OpenAIAdapter is an adapter that implements llmtypes.Model interface
// using the OpenAI Go SDK directly
type OpenAIAdapter struct {
	client  *openai.Client
	modelID string
	logger  utils.ExtendedLogger
}

// NewOpenAIAdapter creates a new adapter instance
func NewOpenAIAdapter(client *openai.Client, modelID string, logger utils.ExtendedLogger) *OpenAIAdapter {
	return &OpenAIAdapter{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// usesCompletionTokens reports whether the model rejects max_tokens.
func usesCompletionTokens(modelID string) bool {
	return strings.HasPrefix(modelID, "o1") ||
		strings.HasPrefix(modelID, "o3") ||
		strings.HasPrefix(modelID, "o4") ||
		strings.HasPrefix(modelID, "gpt-4.1") ||
		strings.HasPrefix(modelID, "gpt-5")
}

// GenerateContent implements the llmtypes.Model interface
func (o *OpenAIAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)

	modelID := o.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: convertMessages(messages),
	}
	if opts.Temperature > 0 {
		params.Temperature = param.NewOpt(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		if usesCompletionTokens(modelID) {
			params.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
		} else {
			params.MaxTokens = param.NewOpt(int64(opts.MaxTokens))
		}
	}
	if opts.JSONMode {
		jsonObjParam := shared.NewResponseFormatJSONObjectParam()
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &jsonObjParam,
		}
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, o.wrapError(modelID, err)
	}
	return convertResponse(result), nil
}

func (o *OpenAIAdapter) wrapError(modelID string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		o.logger.Debugf("openai throttled model %s: %s", modelID, apiErr.Message)
		return fmt.Errorf("openai generate content: %w: %v", llmtypes.ErrRateLimited, err)
	}
	o.logger.Errorf("openai generate content failed - model: %s, error: %v", modelID, err)
	return fmt.Errorf("openai generate content: %w", err)
}

func convertMessages(messages []llmtypes.MessageContent) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		text := msg.Text()
		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			out = append(out, openai.SystemMessage(text))
		case llmtypes.ChatMessageTypeAI:
			out = append(out, openai.AssistantMessage(text))
		default:
			out = append(out, openai.UserMessage(text))
		}
	}
	return out
}

func convertResponse(result *openai.ChatCompletion) *llmtypes.ContentResponse {
	resp := &llmtypes.ContentResponse{
		Choices: make([]*llmtypes.ContentChoice, 0, len(result.Choices)),
		Usage: &llmtypes.Usage{
			InputTokens:  int(result.Usage.PromptTokens),
			OutputTokens: int(result.Usage.CompletionTokens),
			TotalTokens:  int(result.Usage.TotalTokens),
		},
	}
	for _, choice := range result.Choices {
		resp.Choices = append(resp.Choices, &llmtypes.ContentChoice{
			Content:    choice.Message.Content,
			StopReason: string(choice.FinishReason),
		})
	}
	return resp
}
