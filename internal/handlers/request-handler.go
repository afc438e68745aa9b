package handlers

import (
	"log"
	"time"

	"access_service/internal/models"
	"access_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"go.mongodb.org/mongo-driver/v2/bson"
)

type RequestHandler struct {
	requestService *service.RequestService
}

func NewRequestHandler(requestService *service.RequestService) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

func (h *RequestHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/access-requests", h.Submit)
	app.Get("/access-requests", h.List)
	app.Get("/access-requests/count", h.CountPending)
	app.Post("/access-requests/:id/approve", h.Approve)
	app.Post("/access-requests/:id/reject", h.Reject)
}

func (h *RequestHandler) Submit(c fiber.Ctx) error {
	principal, ok := caller(c)
	if !ok {
		return nil
	}

	var request struct {
		DocumentID  int      `json:"documentId"`
		Reason      string   `json:"reason"`
		Permissions []string `json:"permissions"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.DocumentID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "documentId is required",
		})
	}

	accessRequest, err := h.requestService.Submit(c.Context(), principal.ID, request.DocumentID, request.Reason, request.Permissions)
	if err != nil {
		return fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": accessRequest,
	})
}

func (h *RequestHandler) List(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	status := models.RequestStatus(c.Query("status"))
	requests, err := h.requestService.List(c.Context(), status)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": requests,
	})
}

func (h *RequestHandler) CountPending(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	count, err := h.requestService.CountPending(c.Context())
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"count": count,
	})
}

func (h *RequestHandler) Approve(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	requestID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request ID format",
		})
	}

	var request struct {
		ExpiresAt   time.Time `json:"expiresAt"`
		Note        string    `json:"note"`
		Permissions []string  `json:"permissions"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	log.Printf("Admin %s approving access request %s", admin.ID, requestID.Hex())

	grant, err := h.requestService.Approve(c.Context(), requestID, request.ExpiresAt, request.Note, admin.ID, request.Permissions)
	if err != nil {
		grantMutations.WithLabelValues("approve", "failure").Inc()
		return fail(c, err)
	}
	grantMutations.WithLabelValues("approve", "success").Inc()

	return c.JSON(fiber.Map{
		"message": "Access request approved",
		"data":    grant,
	})
}

func (h *RequestHandler) Reject(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	requestID, err := bson.ObjectIDFromHex(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request ID format",
		})
	}

	var request struct {
		Note string `json:"note"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	log.Printf("Admin %s rejecting access request %s", admin.ID, requestID.Hex())

	accessRequest, err := h.requestService.Reject(c.Context(), requestID, request.Note, admin.ID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Access request rejected",
		"data":    accessRequest,
	})
}
