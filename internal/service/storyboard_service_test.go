package service

import (
	"context"
	"errors"
	"testing"

	"github.com/storyreel/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const validReply = "Here you go:\n```json\n" + `{
  "title": "Neon Watch",
  "totalDurationSec": 16,
  "scenes": [
    {"id": "scene-1", "order": 1, "durationSec": 8.0, "visualPrompt": "watch in space", "camera": "orbit", "lighting": "neon", "style": "Futuristic", "negativePrompt": "text"},
    {"id": "scene-2", "order": 2, "durationSec": 4, "visualPrompt": "city reflections", "camera": "dolly", "lighting": "rim", "style": "", "negativePrompt": "logo"},
    {"id": "scene-3", "order": 3, "durationSec": 4, "visualPrompt": "logo reveal", "camera": "push in", "lighting": "soft", "style": "Futuristic", "negativePrompt": ""}
  ]
}` + "\n```"

func TestParseStoryboard_Valid(t *testing.T) {
	board, err := ParseStoryboard(validReply, 16, "Futuristic")
	require.NoError(t, err)

	assert.Equal(t, "Neon Watch", board.Title)
	assert.Equal(t, 16, board.TotalDurationSec)
	require.Len(t, board.Scenes, 3)
	assert.Equal(t, 16, board.SceneDurationSum())
	for i, s := range board.Scenes {
		assert.Equal(t, i+1, s.Order)
		assert.Equal(t, model.SceneStatusIdle, s.Status)
		assert.Empty(t, s.VideoURL)
		assert.Empty(t, s.Error)
	}
	assert.Equal(t, "Futuristic", board.Scenes[1].Style)
}

func TestParseStoryboard_FillsIDsAndRenumbersZeroOrders(t *testing.T) {
	raw := `{"title":"t","scenes":[
		{"durationSec":6,"visualPrompt":"a"},
		{"durationSec":6,"visualPrompt":"b"},
		{"durationSec":4,"visualPrompt":"c"}]}`
	board, err := ParseStoryboard(raw, 16, "Minimal")
	require.NoError(t, err)
	assert.Equal(t, "scene-1", board.Scenes[0].ID)
	assert.Equal(t, "scene-3", board.Scenes[2].ID)
	assert.Equal(t, 3, board.Scenes[2].Order)
	assert.Equal(t, "Minimal", board.Scenes[0].Style)
}

func TestParseStoryboard_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       "sorry, I cannot help",
		"no scenes":      `{"title":"t","scenes":[]}`,
		"bad duration":   `{"scenes":[{"order":1,"durationSec":5,"visualPrompt":"a"},{"order":2,"durationSec":8,"visualPrompt":"b"},{"order":3,"durationSec":3,"visualPrompt":"c"}]}`,
		"fractional":     `{"scenes":[{"order":1,"durationSec":7.5,"visualPrompt":"a"},{"order":2,"durationSec":8.5,"visualPrompt":"b"}]}`,
		"sum mismatch":   `{"scenes":[{"order":1,"durationSec":8,"visualPrompt":"a"}]}`,
		"order gap":      `{"scenes":[{"order":1,"durationSec":8,"visualPrompt":"a"},{"order":3,"durationSec":8,"visualPrompt":"b"}]}`,
		"empty prompt":   `{"scenes":[{"order":1,"durationSec":8,"visualPrompt":" "},{"order":2,"durationSec":8,"visualPrompt":"b"}]}`,
		"duplicate id":   `{"scenes":[{"id":"x","order":1,"durationSec":8,"visualPrompt":"a"},{"id":"x","order":2,"durationSec":8,"visualPrompt":"b"}]}`,
		"overlong total": `{"scenes":[{"order":1,"durationSec":8,"visualPrompt":"a"},{"order":2,"durationSec":8,"visualPrompt":"b"},{"order":3,"durationSec":8,"visualPrompt":"c"}]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStoryboard(raw, 16, "Cinematic")
			assert.ErrorIs(t, err, ErrInvalidStoryboard)
		})
	}
}

func TestPlanDurations_SumsToTotal(t *testing.T) {
	for total := 4; total <= 120; total += 2 {
		durations, err := PlanDurations(total)
		require.NoError(t, err, "total %d", total)
		sum := 0
		for _, d := range durations {
			assert.True(t, model.IsValidSceneDuration(d), "total %d has duration %d", total, d)
			sum += d
		}
		assert.Equal(t, total, sum)
	}

	for _, bad := range []int{0, 2, 5, 9} {
		_, err := PlanDurations(bad)
		assert.ErrorIs(t, err, ErrInvalidStoryboard, "total %d", bad)
	}
}

func TestPlanStoryboard_EveryDurationOption(t *testing.T) {
	for _, total := range model.DurationOptions {
		board, err := PlanStoryboard("A lighthouse at dusk. Waves crash below! Gulls circle overhead.", total, "Documentary")
		require.NoError(t, err)
		require.NoError(t, board.Validate(total))
		assert.Equal(t, "A lighthouse at dusk", board.Title)
	}
}

func TestStoryboardService_BackendSelection(t *testing.T) {
	gemini := &fakeGenerator{reply: validReply}
	svc := NewStoryboardService(gemini, nil, nil, zap.NewNop())
	board, err := svc.Generate(context.Background(), "key", "A smartwatch", 16, "Futuristic")
	require.NoError(t, err)
	assert.Equal(t, "Neon Watch", board.Title)
	require.Len(t, gemini.prompts, 1)
	assert.Contains(t, gemini.prompts[0], "Sum of all scene durations must be exactly 16 seconds.")

	chat := &fakeGenerator{reply: validReply}
	svc = NewStoryboardService(nil, chat, nil, zap.NewNop())
	_, err = svc.Generate(context.Background(), "", "A smartwatch", 16, "Futuristic")
	require.NoError(t, err)
	assert.Len(t, chat.prompts, 1)

	svc = NewStoryboardService(nil, nil, nil, zap.NewNop())
	board, err = svc.Generate(context.Background(), "", "A smartwatch", 24, "Minimal")
	require.NoError(t, err)
	assert.Equal(t, 24, board.SceneDurationSum())
}

func TestStoryboardService_PropagatesBackendError(t *testing.T) {
	upstream := errors.New("429 RESOURCE_EXHAUSTED")
	svc := NewStoryboardService(&fakeGenerator{err: upstream}, nil, nil, zap.NewNop())
	_, err := svc.Generate(context.Background(), "key", "x", 8, "Cinematic")
	assert.ErrorIs(t, err, upstream)

	svc = NewStoryboardService(&fakeGenerator{reply: `{"scenes":[]}`}, nil, nil, zap.NewNop())
	_, err = svc.Generate(context.Background(), "key", "x", 8, "Cinematic")
	assert.ErrorIs(t, err, ErrInvalidStoryboard)
}
