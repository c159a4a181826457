package model

// RenderBatchPayload is the queued task body for rendering every pending
// scene of a project.
type RenderBatchPayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

// RegenerateScenePayload is the queued task body for rendering one scene.
type RegenerateScenePayload struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
	SceneID   string `json:"sceneId"`
}
