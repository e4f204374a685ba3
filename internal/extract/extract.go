// Package extract turns model output into validated Go values.
//
// Each attempt asks the model for a single fenced JSON block, strips the
// fences, parses the block as JSONC and validates the decoded value with
// its `validate` struct tags. Any failure repeats the whole generation.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/tailscale/hujson"

	"github.com/RogWilco/jacob/internal/llm"
	"github.com/RogWilco/jacob/pkg/utils"
)

const (
	DefaultMaxRetries = 3

	codeBlockInstruction = "\n\nIMPORTANT! YOU MUST return ALL output in a single ``` code block ```."
)

var (
	// ErrExtractionExhausted means no attempt produced a valid value.
	ErrExtractionExhausted = errors.New("extraction attempts exhausted")

	errEmptyResponse = errors.New("empty response from model")
	errNotAnObject   = errors.New("expected a JSON object")
	errNotJSON       = errors.New("response is neither a JSON object nor an array")

	fenceLine = regexp.MustCompile("(?m)^```.*$")
	validate  = validator.New(validator.WithRequiredStructEnabled())
)

// Generator produces text for a prompt. *llm.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// Request describes one extraction. MaxRetries bounds full generations;
// zero selects DefaultMaxRetries.
type Request struct {
	UserPrompt   string
	SystemPrompt string
	Temperature  float64
	MaxRetries   int
}

// Extractor runs extractions against one generator.
type Extractor struct {
	gen    Generator
	logger utils.ExtendedLogger
}

func New(gen Generator, logger utils.ExtendedLogger) *Extractor {
	return &Extractor{gen: gen, logger: logger}
}

// Object extracts a single T. An array response fails the attempt.
func Object[T any](ctx context.Context, e *Extractor, req Request) (T, error) {
	var zero T
	out, err := run(ctx, e, req, schemaFor[T](false), func(raw []byte) (T, error) {
		if firstByte(raw) != '{' {
			return zero, errNotAnObject
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return zero, fmt.Errorf("decode object: %w", err)
		}
		if err := validate.Struct(v); err != nil {
			return zero, fmt.Errorf("validate object: %w", err)
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return out, nil
}

// List extracts a list of T. A single object response is treated as a
// one-element list. One invalid element fails the whole attempt.
func List[T any](ctx context.Context, e *Extractor, req Request) ([]T, error) {
	return run(ctx, e, req, schemaFor[T](true), func(raw []byte) ([]T, error) {
		var items []T
		switch firstByte(raw) {
		case '[':
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("decode array: %w", err)
			}
		case '{':
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode object: %w", err)
			}
			items = []T{v}
		default:
			return nil, errNotJSON
		}
		for i, item := range items {
			if err := validate.Struct(item); err != nil {
				return nil, fmt.Errorf("validate element %d: %w", i, err)
			}
		}
		return items, nil
	})
}

func run[R any](ctx context.Context, e *Extractor, req Request, schema string, decode func([]byte) (R, error)) (R, error) {
	var zero R
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	genReq := llm.Request{
		UserPrompt:   req.UserPrompt,
		SystemPrompt: req.SystemPrompt + codeBlockInstruction + schema,
		Temperature:  req.Temperature,
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		text, err := e.gen.Generate(ctx, genReq)
		if err == nil {
			var raw []byte
			raw, err = Clean(text)
			if err == nil {
				var out R
				if out, err = decode(raw); err == nil {
					return out, nil
				}
			}
		}

		if errors.Is(err, llm.ErrBudgetExceeded) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		e.logger.Warnf("extraction attempt %d of %d failed: %v", attempt, maxRetries, err)
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExtractionExhausted, maxRetries, lastErr)
}

// Clean strips code fence lines and converts JSONC to standard JSON.
func Clean(text string) ([]byte, error) {
	stripped := bytes.TrimSpace([]byte(fenceLine.ReplaceAllString(text, "")))
	if len(stripped) == 0 {
		return nil, errEmptyResponse
	}
	std, err := hujson.Standardize(stripped)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return std, nil
}

func firstByte(raw []byte) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

func schemaFor[T any](list bool) string {
	r := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	data, err := json.MarshalIndent(r.Reflect(new(T)), "", "  ")
	if err != nil {
		return ""
	}
	shape := "a JSON object"
	if list {
		shape = "a JSON array of objects"
	}
	return fmt.Sprintf("\nThe code block must contain %s matching this JSON schema:\n%s", shape, data)
}
