package llmtypes

// CallOption adjusts a single GenerateContent call. Adapters read the
// result back with ApplyOptions.
type CallOption func(*CallOptions)

func ApplyOptions(opts ...CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithModel(id string) CallOption {
	return func(o *CallOptions) { o.Model = id }
}

func WithTemperature(t float64) CallOption {
	return func(o *CallOptions) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

// WithJSONMode asks the provider for a JSON-only answer where supported.
func WithJSONMode() CallOption {
	return func(o *CallOptions) { o.JSONMode = true }
}

// TextPart is a message with a single text part.
func TextPart(role ChatMessageType, text string) MessageContent {
	return MessageContent{Role: role, Parts: []ContentPart{TextContent{Text: text}}}
}
