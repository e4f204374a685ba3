package llmtypes

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by a Model when the provider throttled the
// request. Adapters must wrap their vendor error with it so callers can
// tell throttling apart from other failures.
var ErrRateLimited = errors.New("rate limited by model provider")

// Model is the core interface for LLM implementations
type Model interface {
	GenerateContent(ctx context.Context, messages []MessageContent, options ...CallOption) (*ContentResponse, error)
}

// ChatMessageType represents the role of a chat message
type ChatMessageType string

const (
	ChatMessageTypeSystem ChatMessageType = "system"
	ChatMessageTypeHuman  ChatMessageType = "human"
	ChatMessageTypeAI     ChatMessageType = "ai"
)

// ContentPart is an interface for different types of message parts
type ContentPart interface{}

// TextContent represents a text content part
type TextContent struct {
	Text string
}

// MessageContent represents a message in the conversation
type MessageContent struct {
	Role  ChatMessageType
	Parts []ContentPart
}

// Text joins the text parts of the message.
func (m MessageContent) Text() string {
	var out string
	for _, p := range m.Parts {
		if tc, ok := p.(TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

// ContentResponse represents the response from an LLM
type ContentResponse struct {
	Choices []*ContentChoice
	Usage   *Usage
}

// ContentChoice represents a single choice in the response
type ContentChoice struct {
	Content    string
	StopReason string
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// CallOptions holds all call options for LLM generation
type CallOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
}
