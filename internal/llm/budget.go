package llm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/RogWilco/jacob/pkg/utils"
)

var (
	// ErrBudgetExceeded means the prompt alone fills the model's context window.
	ErrBudgetExceeded = errors.New("prompt exceeds model context window")
	// ErrUnknownModel means no profile is registered for the requested model id.
	ErrUnknownModel = errors.New("unknown model")
)

// ModelProfile describes how many tokens a model accepts and emits.
type ModelProfile struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Profiles maps a model id to its profile.
type Profiles map[string]ModelProfile

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() Profiles {
	return Profiles{
		"gpt-4-0613":                 {ContextWindow: 8192, MaxOutputTokens: 8192},
		"gpt-4-vision-preview":       {ContextWindow: 128000, MaxOutputTokens: 4096},
		"gpt-4-1106-preview":         {ContextWindow: 128000, MaxOutputTokens: 4096},
		"gpt-4-turbo":                {ContextWindow: 128000, MaxOutputTokens: 4096},
		"gpt-4o":                     {ContextWindow: 128000, MaxOutputTokens: 16384},
		"gpt-4o-mini":                {ContextWindow: 128000, MaxOutputTokens: 16384},
		"gpt-4.1":                    {ContextWindow: 1047576, MaxOutputTokens: 32768},
		"gpt-4.1-mini":               {ContextWindow: 1047576, MaxOutputTokens: 32768},
		"claude-3-5-sonnet-20241022": {ContextWindow: 200000, MaxOutputTokens: 8192},
		"claude-sonnet-4-20250514":   {ContextWindow: 200000, MaxOutputTokens: 64000},
	}
}

// Lookup returns the profile for model.
func (p Profiles) Lookup(model string) (ModelProfile, error) {
	profile, ok := p[model]
	if !ok {
		return ModelProfile{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	return profile, nil
}

// TokenCounter counts the tokens a piece of text occupies.
type TokenCounter interface {
	CountTokens(text string) (int, error)
}

// TiktokenCounter counts tokens with the BPE encoding of a model.
// Models tiktoken does not know use cl100k_base.
type TiktokenCounter struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter returns a counter for model. The encoding is loaded
// lazily on the first CountTokens call.
func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

// CountTokens returns the number of tokens in text. It fails only when no
// encoding can be loaded, and keeps failing with the same error afterwards.
func (c *TiktokenCounter) CountTokens(text string) (int, error) {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.EncodingForModel(c.model)
		if c.err != nil {
			c.enc, c.err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		}
	})
	if c.err != nil {
		return 0, fmt.Errorf("load encoding for %s: %w", c.model, c.err)
	}
	return len(c.enc.Encode(text, nil, nil)), nil
}

// Estimator computes the response token budget for a prompt.
type Estimator struct {
	counter TokenCounter
	logger  utils.ExtendedLogger
}

// NewEstimator returns an Estimator that sizes prompts with counter and logs
// tokenizer failures to logger.
func NewEstimator(counter TokenCounter, logger utils.ExtendedLogger) *Estimator {
	return &Estimator{counter: counter, logger: logger}
}

// MaxTokens returns min(window - input - padding, maxOutput), where padding is
// 1% of the window rounded up. A tokenizer failure degrades to half the window
// (capped at the output limit) instead of failing.
func (e *Estimator) MaxTokens(text string, profile ModelProfile) (int, error) {
	inputTokens, err := e.counter.CountTokens(text)
	if err != nil {
		fallback := min((profile.ContextWindow+1)/2, profile.MaxOutputTokens)
		e.logger.Warnf("token count failed, using fallback budget %d: %v", fallback, err)
		return fallback, nil
	}

	padding := (profile.ContextWindow + 99) / 100
	budget := min(profile.ContextWindow-inputTokens-padding, profile.MaxOutputTokens)
	if budget <= 0 {
		return 0, fmt.Errorf("%w: %d input tokens, window %d", ErrBudgetExceeded, inputTokens, profile.ContextWindow)
	}
	return budget, nil
}
