package model

import (
	"fmt"
	"time"
)

// Scene is one timed segment of the target video.
type Scene struct {
	ID             string      `json:"id"`
	Order          int         `json:"order"`
	DurationSec    int         `json:"durationSec"`
	VisualPrompt   string      `json:"visualPrompt"`
	Camera         string      `json:"camera"`
	Lighting       string      `json:"lighting"`
	Style          string      `json:"style"`
	NegativePrompt string      `json:"negativePrompt"`
	Status         SceneStatus `json:"status"`
	VideoURL       string      `json:"videoUrl,omitempty"`
	Error          string      `json:"error,omitempty"`
}

// Generating returns a copy of s marked as rendering, with any previous
// outcome cleared.
func (s Scene) Generating() Scene {
	s.Status = SceneStatusGenerating
	s.VideoURL = ""
	s.Error = ""
	return s
}

// Completed returns a copy of s holding the rendered clip.
func (s Scene) Completed(videoURL string) Scene {
	s.Status = SceneStatusCompleted
	s.VideoURL = videoURL
	s.Error = ""
	return s
}

// Failed returns a copy of s holding a render failure message.
func (s Scene) Failed(msg string) Scene {
	s.Status = SceneStatusFailed
	s.VideoURL = ""
	s.Error = msg
	return s
}

// Prompt composes the single rendering directive sent to the video model.
// The negative prompt is not folded in.
func (s Scene) Prompt() string {
	return fmt.Sprintf("%s. Camera: %s. Lighting: %s. Style: %s.", s.VisualPrompt, s.Camera, s.Lighting, s.Style)
}

// Storyboard is the ordered scene plan produced once from user input.
type Storyboard struct {
	Title            string  `json:"title"`
	TotalDurationSec int     `json:"totalDurationSec"`
	Scenes           []Scene `json:"scenes"`
}

// Clone returns a deep copy of b.
func (b *Storyboard) Clone() *Storyboard {
	if b == nil {
		return nil
	}
	out := *b
	out.Scenes = append([]Scene(nil), b.Scenes...)
	return &out
}

// WithScenes returns a new storyboard value carrying a copy of scenes.
func (b *Storyboard) WithScenes(scenes []Scene) *Storyboard {
	out := *b
	out.Scenes = append([]Scene(nil), scenes...)
	return &out
}

// SceneDurationSum adds up all scene durations.
func (b *Storyboard) SceneDurationSum() int {
	total := 0
	for _, s := range b.Scenes {
		total += s.DurationSec
	}
	return total
}

// IndexOf returns the position of the scene with the given id, or -1.
func (b *Storyboard) IndexOf(sceneID string) int {
	for i, s := range b.Scenes {
		if s.ID == sceneID {
			return i
		}
	}
	return -1
}

// CountStatus counts scenes in the given status.
func (b *Storyboard) CountStatus(status SceneStatus) int {
	n := 0
	for _, s := range b.Scenes {
		if s.Status == status {
			n++
		}
	}
	return n
}

// AllCompleted reports whether every scene has a clip.
func (b *Storyboard) AllCompleted() bool {
	return len(b.Scenes) > 0 && b.CountStatus(SceneStatusCompleted) == len(b.Scenes)
}

// HasFailures reports whether any scene ended in failure.
func (b *Storyboard) HasFailures() bool {
	return b.CountStatus(SceneStatusFailed) > 0
}

// Validate checks the structural storyboard contract against the requested
// total duration.
func (b *Storyboard) Validate(requestedTotal int) error {
	if len(b.Scenes) == 0 {
		return fmt.Errorf("storyboard has no scenes")
	}
	for i, s := range b.Scenes {
		if !IsValidSceneDuration(s.DurationSec) {
			return fmt.Errorf("scene %d has invalid duration %ds", i+1, s.DurationSec)
		}
		if s.Order != i+1 {
			return fmt.Errorf("scene %d has order %d", i+1, s.Order)
		}
		if s.ID == "" {
			return fmt.Errorf("scene %d has no id", i+1)
		}
	}
	if sum := b.SceneDurationSum(); sum != requestedTotal {
		return fmt.Errorf("scene durations sum to %ds, expected %ds", sum, requestedTotal)
	}
	return nil
}

// ProjectConfig holds the generation settings chosen for a project.
type ProjectConfig struct {
	Duration    int     `json:"duration"`
	Style       string  `json:"style"`
	AspectRatio string  `json:"aspectRatio"`
	Quality     Quality `json:"quality"`
}

// VideoProject is the unit of work and the unit of history.
type VideoProject struct {
	ID            string        `json:"id"`
	OriginalText  string        `json:"originalText"`
	Storyboard    *Storyboard   `json:"storyboard,omitempty"`
	Config        ProjectConfig `json:"config"`
	FinalVideoURL string        `json:"finalVideoUrl,omitempty"`
	Status        ProjectStatus `json:"status"`
	Version       int           `json:"version"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Clone returns a deep copy of p.
func (p *VideoProject) Clone() *VideoProject {
	if p == nil {
		return nil
	}
	out := *p
	out.Storyboard = p.Storyboard.Clone()
	return &out
}

// Alert is a project-level notice such as the quota remediation prompt.
type Alert struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}
