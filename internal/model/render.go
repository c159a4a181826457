package model

import "time"

// RenderStartResponse is returned when a batch render is queued.
type RenderStartResponse struct {
	TaskID      string        `json:"taskId"`
	ProjectID   string        `json:"projectId"`
	Status      ProjectStatus `json:"status"`
	SceneCount  int           `json:"sceneCount"`
	PendingRuns int           `json:"pendingScenes"`
	QueuedAt    time.Time     `json:"queuedAt"`
}

// RegenerateResponse is returned when a single scene render is queued.
type RegenerateResponse struct {
	TaskID    string    `json:"taskId"`
	ProjectID string    `json:"projectId"`
	SceneID   string    `json:"sceneId"`
	QueuedAt  time.Time `json:"queuedAt"`
}

// PlaylistResponse describes the clip sequencer view of the current project.
type PlaylistResponse struct {
	ProjectID      string   `json:"projectId"`
	Clips          []string `json:"clips"`
	CurrentIndex   int      `json:"currentIndex"`
	CurrentClip    string   `json:"currentClip,omitempty"`
	Progress       int      `json:"progress"`
	CompletedCount int      `json:"completedCount"`
	TotalCount     int      `json:"totalCount"`
	DownloadURL    string   `json:"downloadUrl,omitempty"`
	FinalVideoURL  string   `json:"finalVideoUrl,omitempty"`
}

// MergeResponse carries the exported video locator.
type MergeResponse struct {
	ProjectID     string `json:"projectId"`
	FinalVideoURL string `json:"finalVideoUrl"`
}
