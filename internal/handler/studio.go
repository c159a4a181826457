package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/response"
)

type StudioHandler struct {
	service   *service.StudioService
	validator *validator.Validate
}

func NewStudioHandler(svc *service.StudioService, v *validator.Validate) *StudioHandler {
	return &StudioHandler{
		service:   svc,
		validator: v,
	}
}

// Options handles GET /api/options
func (h *StudioHandler) Options(c *fiber.Ctx) error {
	return response.OK(c, model.OptionsResponse{
		Durations:   model.DurationOptions,
		Styles:      model.ValidStyles,
		Qualities:   model.ValidQualities,
		AspectRatio: model.AspectRatio,
		Examples:    model.Examples,
	})
}

// Studio handles GET /api/studio
func (h *StudioHandler) Studio(c *fiber.Ctx) error {
	result, err := h.service.Studio(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return studioError(c, err)
	}
	if result.History == nil {
		result.History = []*model.VideoProject{}
	}
	return response.OK(c, result)
}

// CreateProject handles POST /api/projects
func (h *StudioHandler) CreateProject(c *fiber.Ctx) error {
	var req model.CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	project, err := h.service.CreateProject(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return studioError(c, err)
	}
	return response.Created(c, project)
}

// Current handles GET /api/projects/current
func (h *StudioHandler) Current(c *fiber.Ctx) error {
	project, err := h.service.Current(middleware.GetUserID(c))
	if err != nil {
		return studioError(c, err)
	}
	return response.OK(c, project)
}

// Reset handles DELETE /api/projects/current
func (h *StudioHandler) Reset(c *fiber.Ctx) error {
	if err := h.service.Reset(middleware.GetUserID(c)); err != nil {
		return studioError(c, err)
	}
	return response.NoContent(c)
}

// History handles GET /api/projects/history
func (h *StudioHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return response.ValidationError(c, "limit must not be negative", nil)
	}
	history := h.service.History(middleware.GetUserID(c), limit)
	if history == nil {
		history = []*model.VideoProject{}
	}
	return response.OK(c, fiber.Map{"history": history})
}

// UpdateScene handles PATCH /api/projects/current/scenes/:sceneId
func (h *StudioHandler) UpdateScene(c *fiber.Ctx) error {
	sceneID := c.Params("sceneId")
	if sceneID == "" {
		return response.ValidationError(c, "Scene ID is required", nil)
	}

	var req model.UpdateSceneRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	scene, err := h.service.UpdateScene(middleware.GetUserID(c), sceneID, &req)
	if err != nil {
		return studioError(c, err)
	}
	return response.OK(c, scene)
}

// Render handles POST /api/projects/current/render
func (h *StudioHandler) Render(c *fiber.Ctx) error {
	result, err := h.service.StartRender(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return studioError(c, err)
	}
	return response.Accepted(c, result)
}

// Regenerate handles POST /api/projects/current/scenes/:sceneId/regenerate
func (h *StudioHandler) Regenerate(c *fiber.Ctx) error {
	sceneID := c.Params("sceneId")
	if sceneID == "" {
		return response.ValidationError(c, "Scene ID is required", nil)
	}

	result, err := h.service.RegenerateScene(c.UserContext(), middleware.GetUserID(c), sceneID)
	if err != nil {
		return studioError(c, err)
	}
	return response.Accepted(c, result)
}

// Playlist handles GET /api/projects/current/playlist
func (h *StudioHandler) Playlist(c *fiber.Ctx) error {
	result, err := h.service.Playlist(middleware.GetUserID(c), c.QueryInt("index", 0))
	if err != nil {
		return studioError(c, err)
	}
	return response.OK(c, result)
}

// Merge handles POST /api/projects/current/merge
func (h *StudioHandler) Merge(c *fiber.Ctx) error {
	result, err := h.service.Merge(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return studioError(c, err)
	}
	return response.OK(c, result)
}
