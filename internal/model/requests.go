package model

// CreateProjectRequest starts a new project from a free-text concept.
type CreateProjectRequest struct {
	Text     string  `json:"text" validate:"required,min=1,max=4000"`
	Duration int     `json:"duration" validate:"required,oneof=8 16 24 32 48 64"`
	Style    string  `json:"style" validate:"required,oneof=Cinematic Corporate Futuristic Minimal Documentary"`
	Quality  Quality `json:"quality" validate:"omitempty,oneof=standard ultra"`
}

// UpdateSceneRequest edits the descriptive text of one scene. Nil fields are
// left unchanged.
type UpdateSceneRequest struct {
	VisualPrompt   *string `json:"visualPrompt" validate:"omitempty,min=1,max=2000"`
	Camera         *string `json:"camera" validate:"omitempty,max=500"`
	Lighting       *string `json:"lighting" validate:"omitempty,max=500"`
	NegativePrompt *string `json:"negativePrompt" validate:"omitempty,max=1000"`
}

// IsEmpty reports whether the request changes nothing.
func (r *UpdateSceneRequest) IsEmpty() bool {
	return r.VisualPrompt == nil && r.Camera == nil && r.Lighting == nil && r.NegativePrompt == nil
}

// SelectCredentialRequest selects the generation credential for the caller.
// An empty key selects the server default credential.
type SelectCredentialRequest struct {
	APIKey string `json:"apiKey" validate:"omitempty,min=8,max=256"`
}

// CredentialStatusResponse reports whether a credential is selected.
type CredentialStatusResponse struct {
	Selected bool `json:"selected"`
}

// OptionsResponse lists the selectable generation settings.
type OptionsResponse struct {
	Durations   []int         `json:"durations"`
	Styles      []StylePreset `json:"styles"`
	Qualities   []Quality     `json:"qualities"`
	AspectRatio string        `json:"aspectRatio"`
	Examples    []Example     `json:"examples"`
}

// StudioResponse is the full studio view for the caller.
type StudioResponse struct {
	CurrentProject     *VideoProject   `json:"currentProject"`
	History            []*VideoProject `json:"history"`
	CredentialSelected bool            `json:"credentialSelected"`
	Alert              *Alert          `json:"alert,omitempty"`
	RenderAction       string          `json:"renderAction,omitempty"`
	Progress           int             `json:"progress"`
}
