package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/pkg/response"
)

// ClipsHandler serves clips held by the in-memory storage backend.
type ClipsHandler struct {
	storage *client.MemoryStorage
}

func NewClipsHandler(storage *client.MemoryStorage) *ClipsHandler {
	return &ClipsHandler{storage: storage}
}

// Get handles GET /clips/*
func (h *ClipsHandler) Get(c *fiber.Ctx) error {
	key := c.Params("*")
	clip, ok := h.storage.Get(key)
	if !ok {
		return response.NotFound(c, "Clip not found")
	}
	c.Set(fiber.HeaderContentType, clip.ContentType)
	c.Set(fiber.HeaderCacheControl, "private, max-age=86400")
	return c.Send(clip.Data)
}
