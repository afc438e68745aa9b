package handlers

import (
	"log"

	"access_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type TemplateHandler struct {
	templateService *service.TemplateService
}

func NewTemplateHandler(templateService *service.TemplateService) *TemplateHandler {
	return &TemplateHandler{
		templateService: templateService,
	}
}

func (h *TemplateHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/access-templates", h.List)
	app.Post("/access-templates", h.Create)
	app.Delete("/access-templates/:id", h.Delete)
	app.Post("/access-templates/:id/apply", h.Apply)
}

func (h *TemplateHandler) List(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	templates, err := h.templateService.List(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": templates,
	})
}

func (h *TemplateHandler) Create(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	var request struct {
		Name                string   `json:"name"`
		Permissions         []string `json:"permissions"`
		DefaultDurationDays int      `json:"defaultDurationDays"`
		Description         string   `json:"description"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Template name is required",
		})
	}

	template, err := h.templateService.Create(c.Context(), request.Name, request.Permissions, request.DefaultDurationDays, request.Description)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Template created successfully",
		"data":    template,
	})
}

func (h *TemplateHandler) Delete(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	templateID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid template ID format",
		})
	}

	if err := h.templateService.Delete(c.Context(), templateID); err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusNoContent).Send(nil)
}

func (h *TemplateHandler) Apply(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	templateID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid template ID format",
		})
	}

	var request struct {
		UserID     string `json:"userId"`
		DocumentID int    `json:"documentId"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.UserID == "" || request.DocumentID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId and documentId are required",
		})
	}

	log.Printf("Admin %s applying template %s to user %s document %d", admin.ID, templateID.Hex(), request.UserID, request.DocumentID)

	grant, err := h.templateService.Apply(c.Context(), templateID, request.UserID, request.DocumentID, admin.ID)
	if err != nil {
		grantMutations.WithLabelValues("template_apply", "failure").Inc()
		return fail(c, err)
	}
	grantMutations.WithLabelValues("template_apply", "success").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": grant,
	})
}
