package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RogWilco/jacob/internal/llmtypes"
	"github.com/RogWilco/jacob/pkg/utils"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultTemperature  = 0.2
	DefaultMaxRetries   = 10
	// DefaultInitialDelay matches a provider's per-minute token quota window.
	DefaultInitialDelay = 60 * time.Second
)

var (
	// ErrRateLimited is returned once rate-limit retries are exhausted.
	ErrRateLimited = llmtypes.ErrRateLimited
	// ErrEmptyResponse means the model returned no choices.
	ErrEmptyResponse = errors.New("model returned no choices")
)

// Request is one text generation. Zero values select the defaults above;
// a negative MaxRetries disables rate-limit retries.
type Request struct {
	UserPrompt   string
	SystemPrompt string
	Temperature  float64
	MaxRetries   int
	InitialDelay time.Duration
}

func (r Request) withDefaults() Request {
	if r.SystemPrompt == "" {
		r.SystemPrompt = DefaultSystemPrompt
	}
	if r.Temperature == 0 {
		r.Temperature = DefaultTemperature
	}
	switch {
	case r.MaxRetries == 0:
		r.MaxRetries = DefaultMaxRetries
	case r.MaxRetries < 0:
		r.MaxRetries = 0
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = DefaultInitialDelay
	}
	return r
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Client sends prompts to one model under its token budget and retries
// throttled requests with exponential backoff.
type Client struct {
	model     llmtypes.Model
	modelID   string
	profiles  Profiles
	estimator *Estimator
	logger    utils.ExtendedLogger
	sleep     Sleeper
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithSleeper replaces the backoff wait. Tests use it to record delays.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) {
		c.sleep = s
	}
}

// NewClient returns a Client for modelID. profiles supplies its context
// window and output limit, and counter sizes each prompt against them.
func NewClient(model llmtypes.Model, modelID string, profiles Profiles, counter TokenCounter, logger utils.ExtendedLogger, opts ...ClientOption) *Client {
	c := &Client{
		model:     model,
		modelID:   modelID,
		profiles:  profiles,
		estimator: NewEstimator(counter, logger),
		logger:    logger,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ModelID returns the model every request is sent to.
func (c *Client) ModelID() string {
	return c.modelID
}

// Generate returns the text of the first choice for req.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	req = req.withDefaults()

	profile, err := c.profiles.Lookup(c.modelID)
	if err != nil {
		return "", err
	}
	maxTokens, err := c.estimator.MaxTokens(req.UserPrompt+req.SystemPrompt, profile)
	if err != nil {
		return "", err
	}

	messages := []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, req.SystemPrompt),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, req.UserPrompt),
	}
	opts := []llmtypes.CallOption{
		llmtypes.WithModel(c.modelID),
		llmtypes.WithTemperature(req.Temperature),
		llmtypes.WithMaxTokens(maxTokens),
	}

	delay := req.InitialDelay
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		resp, err := c.model.GenerateContent(ctx, messages, opts...)
		if err == nil {
			if resp == nil || len(resp.Choices) == 0 {
				return "", ErrEmptyResponse
			}
			return resp.Choices[0].Content, nil
		}
		if !errors.Is(err, llmtypes.ErrRateLimited) {
			return "", fmt.Errorf("generate with %s: %w", c.modelID, err)
		}
		if attempt >= req.MaxRetries {
			return "", fmt.Errorf("%w: gave up after %d attempts: %v", ErrRateLimited, attempt+1, err)
		}

		c.logger.Warnf("rate limited by %s, retrying in %s (retry %d of %d)", c.modelID, delay, attempt+1, req.MaxRetries)
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
}
