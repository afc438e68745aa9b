package handlers

import (
	"strconv"

	"access_service/internal/service"

	"github.com/gofiber/fiber/v3"
)

type AuditHandler struct {
	auditService *service.AuditService
}

func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

func (h *AuditHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/audit/logs", h.List)
	app.Get("/audit/stats", h.Stats)
}

func (h *AuditHandler) List(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	entries, err := h.auditService.List(c.Context(), limit, offset)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": entries,
	})
}

func (h *AuditHandler) Stats(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	stats, err := h.auditService.Stats(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": stats,
	})
}
