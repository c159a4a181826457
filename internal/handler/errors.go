package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/playback"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	"github.com/storyreel/api/pkg/response"
)

func formatValidationErrors(err error) interface{} {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		fields := make(map[string]string)
		for _, e := range validationErrors {
			fields[e.Field()] = e.Tag()
		}
		return fields
	}
	return nil
}

// studioError maps studio and store errors to API responses.
func studioError(c *fiber.Ctx, err error) error {
	var sbErr *service.StoryboardError
	switch {
	case errors.As(err, &sbErr):
		if sbErr.Quota {
			return response.QuotaExceeded(c, sbErr.Message)
		}
		return response.StoryboardError(c, sbErr.Message)
	case errors.Is(err, failure.ErrCredentialRequired), errors.Is(err, failure.ErrSessionInvalid):
		return response.SessionInvalid(c, failure.LabelSessionInvalid)
	case errors.Is(err, store.ErrNoProject):
		return response.NotFound(c, "No current project")
	case errors.Is(err, store.ErrSceneNotFound):
		return response.NotFound(c, "Scene not found")
	case errors.Is(err, service.ErrProjectBusy), errors.Is(err, store.ErrBusy):
		return response.Conflict(c, "Project is generating")
	case errors.Is(err, service.ErrSceneBusy):
		return response.Conflict(c, "Scene is generating")
	case errors.Is(err, playback.ErrNoClips):
		return response.Conflict(c, "No completed clips to merge")
	case errors.Is(err, store.ErrNoStoryboard):
		return response.Conflict(c, "Project has no storyboard")
	case errors.Is(err, service.ErrEmptySceneUpdate):
		return response.ValidationError(c, "No scene fields to update", nil)
	}
	return response.ServiceError(c, err.Error())
}
