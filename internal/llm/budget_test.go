package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RogWilco/jacob/pkg/logger"
)

type fixedCounter struct {
	tokens int
	err    error
}

func (f fixedCounter) CountTokens(string) (int, error) {
	return f.tokens, f.err
}

func TestEstimatorMaxTokens(t *testing.T) {
	profile := ModelProfile{ContextWindow: 1000, MaxOutputTokens: 100}

	tests := []struct {
		name    string
		counter fixedCounter
		profile ModelProfile
		want    int
		wantErr error
	}{
		{name: "capped by max output", counter: fixedCounter{tokens: 500}, profile: profile, want: 100},
		{name: "limited by window", counter: fixedCounter{tokens: 895}, profile: profile, want: 95},
		{name: "window exactly filled", counter: fixedCounter{tokens: 990}, profile: profile, wantErr: ErrBudgetExceeded},
		{name: "over window", counter: fixedCounter{tokens: 5000}, profile: profile, wantErr: ErrBudgetExceeded},
		{name: "tokenizer failure", counter: fixedCounter{err: errors.New("no bpe")}, profile: ModelProfile{ContextWindow: 1001, MaxOutputTokens: 8192}, want: 501},
		{name: "tokenizer failure capped", counter: fixedCounter{err: errors.New("no bpe")}, profile: profile, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEstimator(tt.counter, logger.CreateTestLogger())
			got, err := e.MaxTokens("prompt", tt.profile)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEstimatorBounds(t *testing.T) {
	profile := ModelProfile{ContextWindow: 8192, MaxOutputTokens: 4096}
	padding := 82

	for input := 0; input <= 9000; input += 37 {
		e := NewEstimator(fixedCounter{tokens: input}, logger.CreateTestLogger())
		got, err := e.MaxTokens("", profile)
		if input >= profile.ContextWindow-padding {
			assert.ErrorIs(t, err, ErrBudgetExceeded, "input %d", input)
			continue
		}
		require.NoError(t, err, "input %d", input)
		assert.Greater(t, got, 0, "input %d", input)
		assert.LessOrEqual(t, got, profile.MaxOutputTokens, "input %d", input)
	}
}

func TestProfilesLookup(t *testing.T) {
	p := DefaultProfiles()

	got, err := p.Lookup("gpt-4-0613")
	require.NoError(t, err)
	assert.Equal(t, ModelProfile{ContextWindow: 8192, MaxOutputTokens: 8192}, got)

	_, err = p.Lookup("gpt-2")
	assert.ErrorIs(t, err, ErrUnknownModel)
}
