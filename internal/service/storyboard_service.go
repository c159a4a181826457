package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/storyreel/api/internal/metrics"
	"github.com/storyreel/api/internal/model"
	"go.uber.org/zap"
)

// ErrInvalidStoryboard is returned when the model output breaks the
// storyboard contract.
var ErrInvalidStoryboard = errors.New("invalid storyboard")

// JSONGenerator produces schema constrained JSON with the caller's credential.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, apiKey, prompt string, schema interface{}) (string, error)
}

// ChatGenerator produces a JSON chat reply with a server side credential.
type ChatGenerator interface {
	ChatJSON(ctx context.Context, system, user string) (string, error)
}

// StoryboardService turns free text into a validated storyboard
type StoryboardService struct {
	gemini  JSONGenerator
	chat    ChatGenerator
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStoryboardService wires the storyboard backends. With both backends nil
// the deterministic planner is used.
func NewStoryboardService(gemini JSONGenerator, chat ChatGenerator, m *metrics.Metrics, logger *zap.Logger) *StoryboardService {
	return &StoryboardService{
		gemini:  gemini,
		chat:    chat,
		metrics: m,
		logger:  logger.Named("storyboard"),
	}
}

// Generate produces a storyboard whose scene durations sum to totalDuration.
// No partial storyboard is ever returned.
func (s *StoryboardService) Generate(ctx context.Context, apiKey, text string, totalDuration int, style string) (*model.Storyboard, error) {
	var (
		raw string
		err error
	)
	switch {
	case s.gemini != nil:
		raw, err = s.gemini.GenerateJSON(ctx, apiKey, buildStoryboardPrompt(text, totalDuration, style), storyboardSchema)
	case s.chat != nil:
		raw, err = s.chat.ChatJSON(ctx, storyboardSystemPrompt, buildStoryboardPrompt(text, totalDuration, style))
	default:
		board, mockErr := PlanStoryboard(text, totalDuration, style)
		if mockErr != nil {
			s.metrics.StoryboardGenerated("invalid")
			return nil, mockErr
		}
		s.metrics.StoryboardGenerated("mock")
		return board, nil
	}
	if err != nil {
		s.metrics.StoryboardGenerated("error")
		s.logger.Warn("storyboard generation failed", zap.Error(err))
		return nil, err
	}

	board, err := ParseStoryboard(raw, totalDuration, style)
	if err != nil {
		s.metrics.StoryboardGenerated("invalid")
		s.logger.Warn("storyboard rejected", zap.Error(err))
		return nil, err
	}
	s.metrics.StoryboardGenerated("ok")
	return board, nil
}

const storyboardSystemPrompt = "You are a storyboard artist for short AI generated videos. Reply with a single JSON object and nothing else."

func buildStoryboardPrompt(text string, totalDuration int, style string) string {
	return fmt.Sprintf(`Transform the following text into a professional video storyboard for a %d second video in %s style.

Text Input: %q

Rules:
- Return valid JSON only.
- Each scene duration must be exactly 4, 6, or 8 seconds.
- Sum of all scene durations must be exactly %d seconds.
- visualPrompt should be optimized for a video generation model (Veo 3), high detail.
- Camera movements should be cinematic.

Format:
{
  "title": "string",
  "totalDurationSec": %d,
  "scenes": [
    {
      "id": "scene-1",
      "order": 1,
      "durationSec": number (4, 6, or 8),
      "visualPrompt": "detailed description",
      "camera": "camera movement",
      "lighting": "lighting description",
      "style": "%s",
      "negativePrompt": "text, watermark, logo, distortion"
    }
  ]
}`, totalDuration, style, text, totalDuration, totalDuration, style)
}

var storyboardSchema = map[string]interface{}{
	"type": "OBJECT",
	"properties": map[string]interface{}{
		"title":            map[string]string{"type": "STRING"},
		"totalDurationSec": map[string]string{"type": "NUMBER"},
		"scenes": map[string]interface{}{
			"type": "ARRAY",
			"items": map[string]interface{}{
				"type": "OBJECT",
				"properties": map[string]interface{}{
					"id":             map[string]string{"type": "STRING"},
					"order":          map[string]string{"type": "NUMBER"},
					"durationSec":    map[string]string{"type": "NUMBER"},
					"visualPrompt":   map[string]string{"type": "STRING"},
					"camera":         map[string]string{"type": "STRING"},
					"lighting":       map[string]string{"type": "STRING"},
					"style":          map[string]string{"type": "STRING"},
					"negativePrompt": map[string]string{"type": "STRING"},
				},
				"required": []string{"id", "order", "durationSec", "visualPrompt", "camera", "lighting", "style", "negativePrompt"},
			},
		},
	},
	"required": []string{"title", "totalDurationSec", "scenes"},
}

type rawScene struct {
	ID             string  `json:"id"`
	Order          float64 `json:"order"`
	DurationSec    float64 `json:"durationSec"`
	VisualPrompt   string  `json:"visualPrompt"`
	Camera         string  `json:"camera"`
	Lighting       string  `json:"lighting"`
	Style          string  `json:"style"`
	NegativePrompt string  `json:"negativePrompt"`
}

type rawStoryboard struct {
	Title  string     `json:"title"`
	Scenes []rawScene `json:"scenes"`
}

// ParseStoryboard decodes model output and normalises it into a storyboard
// that satisfies the scene contract, or returns ErrInvalidStoryboard.
func ParseStoryboard(raw string, totalDuration int, style string) (*model.Storyboard, error) {
	var rb rawStoryboard
	if err := json.Unmarshal([]byte(extractJSON(raw)), &rb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStoryboard, err)
	}
	if len(rb.Scenes) == 0 {
		return nil, fmt.Errorf("%w: no scenes", ErrInvalidStoryboard)
	}

	allZero := true
	for _, rs := range rb.Scenes {
		if rs.Order != 0 {
			allZero = false
		}
	}

	scenes := make([]model.Scene, 0, len(rb.Scenes))
	for i, rs := range rb.Scenes {
		duration, ok := wholeNumber(rs.DurationSec)
		if !ok || !model.IsValidSceneDuration(duration) {
			return nil, fmt.Errorf("%w: scene %d duration %v", ErrInvalidStoryboard, i+1, rs.DurationSec)
		}
		order := i + 1
		if !allZero {
			o, ok := wholeNumber(rs.Order)
			if !ok || o != i+1 {
				return nil, fmt.Errorf("%w: scene %d has order %v", ErrInvalidStoryboard, i+1, rs.Order)
			}
		}
		if strings.TrimSpace(rs.VisualPrompt) == "" {
			return nil, fmt.Errorf("%w: scene %d has no visual prompt", ErrInvalidStoryboard, i+1)
		}

		id := strings.TrimSpace(rs.ID)
		if id == "" {
			id = fmt.Sprintf("scene-%d", i+1)
		}
		sceneStyle := rs.Style
		if sceneStyle == "" {
			sceneStyle = style
		}
		scenes = append(scenes, model.Scene{
			ID:             id,
			Order:          order,
			DurationSec:    duration,
			VisualPrompt:   strings.TrimSpace(rs.VisualPrompt),
			Camera:         rs.Camera,
			Lighting:       rs.Lighting,
			Style:          sceneStyle,
			NegativePrompt: rs.NegativePrompt,
			Status:         model.SceneStatusIdle,
		})
	}

	seen := make(map[string]bool, len(scenes))
	for _, sc := range scenes {
		if seen[sc.ID] {
			return nil, fmt.Errorf("%w: duplicate scene id %q", ErrInvalidStoryboard, sc.ID)
		}
		seen[sc.ID] = true
	}

	board := &model.Storyboard{
		Title:            strings.TrimSpace(rb.Title),
		TotalDurationSec: totalDuration,
		Scenes:           scenes,
	}
	if err := board.Validate(totalDuration); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStoryboard, err)
	}
	if board.Title == "" {
		board.Title = "Untitled Storyboard"
	}
	return board, nil
}

func wholeNumber(f float64) (int, bool) {
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// extractJSON extracts a JSON object from a string that might contain other text
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start != -1 && end != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

// PlanDurations splits total into scene lengths of 8, 6 and 4 seconds,
// longest first.
func PlanDurations(total int) ([]int, error) {
	if total < 4 || total%2 != 0 {
		return nil, fmt.Errorf("%w: %ds cannot be split into 4/6/8 second scenes", ErrInvalidStoryboard, total)
	}
	eights, rem := total/8, total%8
	var out []int
	if rem == 2 {
		// 8+2 becomes 6+4
		eights--
		rem = 10
	}
	for i := 0; i < eights; i++ {
		out = append(out, 8)
	}
	switch rem {
	case 4:
		out = append(out, 4)
	case 6:
		out = append(out, 6)
	case 10:
		out = append(out, 6, 4)
	}
	return out, nil
}

var (
	mockCameras   = []string{"Slow dolly in", "Sweeping aerial drone shot", "Smooth tracking shot", "Low angle crane up", "Handheld close-up"}
	mockLighting  = []string{"Golden hour sunlight", "Soft diffused daylight", "Moody neon rim light", "High-key studio lighting", "Volumetric god rays"}
	mockNegatives = "text, watermark, logo, distortion"
)

// PlanStoryboard builds a storyboard without a model. Sentences of text are
// spread over the planned scenes.
func PlanStoryboard(text string, totalDuration int, style string) (*model.Storyboard, error) {
	durations, err := PlanDurations(totalDuration)
	if err != nil {
		return nil, err
	}
	beats := splitSentences(text)

	scenes := make([]model.Scene, len(durations))
	for i, d := range durations {
		beat := beats[i%len(beats)]
		scenes[i] = model.Scene{
			ID:             fmt.Sprintf("scene-%d", i+1),
			Order:          i + 1,
			DurationSec:    d,
			VisualPrompt:   fmt.Sprintf("%s, highly detailed, %s aesthetic", beat, strings.ToLower(style)),
			Camera:         mockCameras[i%len(mockCameras)],
			Lighting:       mockLighting[i%len(mockLighting)],
			Style:          style,
			NegativePrompt: mockNegatives,
			Status:         model.SceneStatusIdle,
		}
	}

	title := beats[0]
	if r := []rune(title); len(r) > 48 {
		title = strings.TrimSpace(string(r[:48]))
	}
	return &model.Storyboard{Title: title, TotalDurationSec: totalDuration, Scenes: scenes}, nil
}

func splitSentences(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	var out []string
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		out = []string{strings.TrimSpace(text)}
	}
	if out[0] == "" {
		out[0] = "Untitled concept"
	}
	return out
}
