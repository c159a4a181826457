package model

// Scene render status
type SceneStatus string

const (
	SceneStatusIdle       SceneStatus = "idle"
	SceneStatusGenerating SceneStatus = "generating"
	SceneStatusCompleted  SceneStatus = "completed"
	SceneStatusFailed     SceneStatus = "failed"
)

// IsTerminal reports whether the status ends a render attempt.
func (s SceneStatus) IsTerminal() bool {
	return s == SceneStatusCompleted || s == SceneStatusFailed
}

// Project status
type ProjectStatus string

const (
	ProjectStatusIdle          ProjectStatus = "idle"
	ProjectStatusStoryboarding ProjectStatus = "storyboarding"
	ProjectStatusGenerating    ProjectStatus = "generating"
	ProjectStatusReady         ProjectStatus = "ready"
)

// Render quality
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityUltra    Quality = "ultra"
)

var ValidQualities = []Quality{QualityStandard, QualityUltra}

// Resolution returns the render resolution tag for the quality level.
func (q Quality) Resolution() string {
	if q == QualityUltra {
		return "1080p"
	}
	return "720p"
}

// Label is the human-facing name used in progress messages.
func (q Quality) Label() string {
	if q == QualityUltra {
		return "Ultra HD"
	}
	return "Standard"
}

// Style presets
type StylePreset string

const (
	StyleCinematic   StylePreset = "Cinematic"
	StyleCorporate   StylePreset = "Corporate"
	StyleFuturistic  StylePreset = "Futuristic"
	StyleMinimal     StylePreset = "Minimal"
	StyleDocumentary StylePreset = "Documentary"
)

var ValidStyles = []StylePreset{
	StyleCinematic, StyleCorporate, StyleFuturistic, StyleMinimal, StyleDocumentary,
}

// AspectRatio is fixed for every project and render job.
const AspectRatio = "16:9"

// DurationOptions are the selectable total video lengths in seconds.
var DurationOptions = []int{8, 16, 24, 32, 48, 64}

// SceneDurations are the only lengths a single scene may have.
var SceneDurations = []int{4, 6, 8}

// IsValidSceneDuration reports whether d is an allowed scene length.
func IsValidSceneDuration(d int) bool {
	for _, allowed := range SceneDurations {
		if d == allowed {
			return true
		}
	}
	return false
}

// Alert codes surfaced at the project level
const (
	AlertQuota          = "QUOTA_ERROR"
	AlertSessionInvalid = "SESSION_INVALID"
	AlertStoryboard     = "STORYBOARD_ERROR"
)

// Example is a canned concept prompt offered to users.
type Example struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

var Examples = []Example{
	{
		Label: "Product Ad",
		Text:  "A high-end smartwatch rotating in space, showing luxury materials and sleek digital interfaces. Cyberpunk neon city lights reflected in the glass.",
	},
	{
		Label: "Explainer",
		Text:  "A friendly animated character explaining complex cloud computing concepts using glowing abstract blocks and flowing data streams.",
	},
	{
		Label: "Corporate Intro",
		Text:  "Modern architectural glass building at sunset, clean lines, professional atmosphere, drone flying through a bright lobby.",
	},
	{
		Label: "Documentary",
		Text:  "Wide shots of a dense tropical rainforest with mist rolling over the mountains, close-ups of exotic flowers and sunlight breaking through leaves.",
	},
}
