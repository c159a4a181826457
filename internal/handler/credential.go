package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/middleware"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/pkg/response"
)

type CredentialHandler struct {
	service   *service.StudioService
	validator *validator.Validate
}

func NewCredentialHandler(svc *service.StudioService, v *validator.Validate) *CredentialHandler {
	return &CredentialHandler{
		service:   svc,
		validator: v,
	}
}

// Status handles GET /api/credentials
func (h *CredentialHandler) Status(c *fiber.Ctx) error {
	selected, err := h.service.CredentialSelected(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.CredentialStatusResponse{Selected: selected})
}

// Select handles POST /api/credentials
func (h *CredentialHandler) Select(c *fiber.Ctx) error {
	var req model.SelectCredentialRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if err := h.service.SelectCredential(c.UserContext(), middleware.GetUserID(c), req.APIKey); err != nil {
		if errors.Is(err, failure.ErrCredentialRequired) {
			return response.ValidationError(c, "An API key is required", nil)
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, model.CredentialStatusResponse{Selected: true})
}

// Drop handles DELETE /api/credentials
func (h *CredentialHandler) Drop(c *fiber.Ctx) error {
	if err := h.service.DropCredential(c.UserContext(), middleware.GetUserID(c)); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.NoContent(c)
}
