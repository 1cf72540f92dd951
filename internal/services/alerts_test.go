package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fyerfyer/esg-insight/internal/cache"
	"github.com/fyerfyer/esg-insight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertsCached(t *testing.T) {
	ctx := context.Background()
	client := llm.NewMockClient(t)
	client.On("Name").Return("groq/" + llm.ModelGroqLarge)
	client.On("Generate", ctx, llm.AlertPrompt).
		Return(&llm.Response{Text: "  ISSB adopted new climate disclosure rules.\n"}, nil).Once()

	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)
	svc := NewAlertService(client, c, time.Hour, quietLogger())

	first, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ISSB adopted new climate disclosure rules.", first.Text)
	assert.False(t, first.Cached)

	second, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
}

func TestAlertsErrors(t *testing.T) {
	ctx := context.Background()
	client := llm.NewMockClient(t)
	client.On("Name").Return("mock")
	client.On("Generate", ctx, llm.AlertPrompt).Return(nil, errors.New("timeout")).Once()
	client.On("Generate", ctx, llm.AlertPrompt).Return(&llm.Response{Text: ""}, nil).Once()

	svc := NewAlertService(client, nil, 0, quietLogger())

	_, err := svc.Latest(ctx)
	assert.ErrorIs(t, err, KindAnswerGeneration)

	_, err = svc.Latest(ctx)
	assert.ErrorIs(t, err, KindAnswerGeneration)
}
