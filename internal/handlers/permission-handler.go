package handlers

import (
	"access_service/internal/catalog"

	"github.com/gofiber/fiber/v3"
)

type PermissionHandler struct{}

func NewPermissionHandler() *PermissionHandler {
	return &PermissionHandler{}
}

func (h *PermissionHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/permission-types", h.ListTypes)
}

func (h *PermissionHandler) ListTypes(c fiber.Ctx) error {
	if _, ok := caller(c); !ok {
		return nil
	}

	return c.JSON(fiber.Map{
		"data": catalog.Types(),
	})
}
