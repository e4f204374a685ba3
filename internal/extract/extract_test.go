package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogWilco/jacob/internal/llm"
	"github.com/RogWilco/jacob/pkg/logger"
)

type step struct {
	Step     string `json:"step" validate:"required"`
	Priority int    `json:"priority" validate:"gte=1"`
}

type scriptedGenerator struct {
	replies []string
	errs    []error
	calls   int
	reqs    []llm.Request
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	i := g.calls
	g.calls++
	g.reqs = append(g.reqs, req)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i >= len(g.replies) {
		return g.replies[len(g.replies)-1], nil
	}
	return g.replies[i], nil
}

func newExtractor(g Generator) *Extractor {
	return New(g, logger.CreateTestLogger())
}

func TestObjectReturnsValidValue(t *testing.T) {
	g := &scriptedGenerator{replies: []string{"```json\n{\"step\": \"add retry\", \"priority\": 2}\n```"}}

	got, err := Object[step](context.Background(), newExtractor(g), Request{UserPrompt: "plan", SystemPrompt: "sys"})
	require.NoError(t, err)
	if diff := cmp.Diff(step{Step: "add retry", Priority: 2}, got); diff != "" {
		t.Errorf("Object() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, g.calls)

	sys := g.reqs[0].SystemPrompt
	assert.True(t, strings.HasPrefix(sys, "sys"))
	assert.Contains(t, sys, "code block")
	assert.Contains(t, sys, `"priority"`)
}

func TestObjectToleratesComments(t *testing.T) {
	g := &scriptedGenerator{replies: []string{"```\n{\n  // chosen step\n  \"step\": \"x\",\n  \"priority\": 1, // trailing\n}\n```"}}

	got, err := Object[step](context.Background(), newExtractor(g), Request{})
	require.NoError(t, err)
	assert.Equal(t, "x", got.Step)
}

func TestListRejectsWholeAttemptOnOneBadElement(t *testing.T) {
	g := &scriptedGenerator{replies: []string{
		`[{"step": "a", "priority": 1}, {"step": "", "priority": 1}]`,
		`[{"step": "a", "priority": 1}, {"step": "b", "priority": 3}]`,
	}}

	got, err := List[step](context.Background(), newExtractor(g), Request{})
	require.NoError(t, err)
	assert.Equal(t, 2, g.calls)
	assert.Equal(t, []step{{Step: "a", Priority: 1}, {Step: "b", Priority: 3}}, got)
}

func TestListWrapsSingleObject(t *testing.T) {
	g := &scriptedGenerator{replies: []string{`{"step": "only", "priority": 1}`}}

	got, err := List[step](context.Background(), newExtractor(g), Request{})
	require.NoError(t, err)
	assert.Equal(t, []step{{Step: "only", Priority: 1}}, got)
}

func TestObjectRejectsArray(t *testing.T) {
	g := &scriptedGenerator{replies: []string{`[{"step": "a", "priority": 1}]`}}

	_, err := Object[step](context.Background(), newExtractor(g), Request{MaxRetries: 2})
	require.ErrorIs(t, err, ErrExtractionExhausted)
	assert.Equal(t, 2, g.calls)
}

func TestExtractionExhausted(t *testing.T) {
	g := &scriptedGenerator{replies: []string{`[{"step": "a", "priority": 0}]`}}

	_, err := List[step](context.Background(), newExtractor(g), Request{})
	require.ErrorIs(t, err, ErrExtractionExhausted)
	assert.Contains(t, err.Error(), "Priority")
	assert.Equal(t, DefaultMaxRetries, g.calls)
}

func TestGeneratorErrorsCountAsAttempts(t *testing.T) {
	g := &scriptedGenerator{
		errs:    []error{errors.New("flaky"), llm.ErrRateLimited},
		replies: []string{"", "", `{"step": "s", "priority": 1}`},
	}

	got, err := Object[step](context.Background(), newExtractor(g), Request{})
	require.NoError(t, err)
	assert.Equal(t, "s", got.Step)
	assert.Equal(t, 3, g.calls)
}

func TestBudgetExceededIsNotRetried(t *testing.T) {
	g := &scriptedGenerator{errs: []error{llm.ErrBudgetExceeded}, replies: []string{""}}

	_, err := Object[step](context.Background(), newExtractor(g), Request{})
	require.ErrorIs(t, err, llm.ErrBudgetExceeded)
	assert.Equal(t, 1, g.calls)
}

func TestCancelledContextStopsAttempts(t *testing.T) {
	g := &scriptedGenerator{replies: []string{"not json"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := List[step](ctx, newExtractor(g), Request{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, g.calls)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "fenced", in: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "trailing comma", in: `[1, 2,]`, want: `[1, 2 ]`},
		{name: "only fences", in: "```\n```", wantErr: true},
		{name: "prose", in: "Sure! here it is", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}
