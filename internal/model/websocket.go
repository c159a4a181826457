package model

// WebSocket message types
const (
	WSMessageTypeScene    = "scene"
	WSMessageTypeProject  = "project"
	WSMessageTypeProgress = "progress"
	WSMessageTypeAlert    = "alert"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSSceneMessage carries a published scene value
type WSSceneMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	Index     int    `json:"index"`
	Total     int    `json:"total"`
	Scene     Scene  `json:"scene"`
}

// WSProjectMessage carries a project status change
type WSProjectMessage struct {
	Type          string        `json:"type"`
	ProjectID     string        `json:"projectId"`
	Status        ProjectStatus `json:"status"`
	FinalVideoURL string        `json:"finalVideoUrl,omitempty"`
}

// WSProgressMessage represents an in-flight render step
type WSProgressMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	SceneID   string `json:"sceneId"`
	Message   string `json:"message"`
}

// WSAlertMessage represents a project-level alert
type WSAlertMessage struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
