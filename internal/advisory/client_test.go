package advisory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tribed/internal/profile"
)

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.APIKey = "sk-test"
	require.NoError(t, valid.Validate())

	missingKey := DefaultConfig()
	assert.Error(t, missingKey.Validate())

	missingModel := valid
	missingModel.Model = ""
	assert.Error(t, missingModel.Validate())

	missingURL := valid
	missingURL.BaseURL = ""
	assert.Error(t, missingURL.Validate())
}

func TestExtractScore(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
		wantErr  bool
	}{
		{name: "bare object", response: `{"score": 87}`, want: 87},
		{name: "wrapped in prose", response: "Sure! Here you go:\n{\"score\": 62.5}\nHope that helps.", want: 62.5},
		{name: "code fence", response: "```json\n{\"score\": 40}\n```", want: 40},
		{name: "no json", response: "eighty five", wantErr: true},
		{name: "out of range", response: `{"score": 250}`, wantErr: true},
		{name: "negative", response: `{"score": -3}`, wantErr: true},
		{name: "malformed", response: `{"score": }`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractScore(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrBadResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyErr(t *testing.T) {
	assert.ErrorIs(t, classifyErr(context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, classifyErr(errors.New("API returned unexpected status code: 401")), ErrAuthentication)
	assert.ErrorIs(t, classifyErr(errors.New("status 429: rate limit exceeded")), ErrRateLimited)
	assert.ErrorIs(t, classifyErr(errors.New("response blocked by content_filter")), ErrContentFiltered)
	assert.Equal(t, context.Canceled, classifyErr(context.Canceled))

	opaque := errors.New("connection refused")
	assert.Equal(t, opaque, classifyErr(opaque))
}

func TestPairScorePrompt(t *testing.T) {
	a := &profile.Profile{
		ID:            "user-a",
		Traits:        []profile.PersonalityTrait{{Name: profile.TraitOpenness, Score: 70}},
		Interests:     []profile.Interest{{Category: profile.CategoryOutdoor, Name: "hiking"}},
		Communication: profile.StyleDirect,
	}
	b := &profile.Profile{ID: "user-b", Communication: profile.StyleAnalytical}

	prompt := pairScorePrompt(a, b)
	assert.Contains(t, prompt, "user-a")
	assert.Contains(t, prompt, "user-b")
	assert.Contains(t, prompt, "outdoor/hiking")
	assert.Contains(t, prompt, `{"score": <number>}`)
	// Location never leaves the process.
	assert.False(t, strings.Contains(prompt, "latitude"))
}

func TestNoopClient(t *testing.T) {
	c := NoopClient{}

	_, err := c.ScorePair(context.Background(), &profile.Profile{}, &profile.Profile{})
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = c.SuggestAdjustments(context.Background(), "summary")
	assert.ErrorIs(t, err, ErrDisabled)
}
