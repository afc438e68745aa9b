package handlers

import (
	"errors"

	"access_service/internal/identity"
	"access_service/internal/models"

	"github.com/gofiber/fiber/v3"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidExpiry),
		errors.Is(err, models.ErrInvalidPermissionSet),
		errors.Is(err, models.ErrEmptyReason):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrDuplicateRequest),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTemplateExists):
		return fiber.StatusConflict
	case errors.Is(err, models.ErrRequestNotFound),
		errors.Is(err, models.ErrTemplateNotFound),
		errors.Is(err, models.ErrDocumentNotFound),
		errors.Is(err, models.ErrUserNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c fiber.Ctx, err error) error {
	if errors.Is(err, models.ErrAuditWriteFailed) {
		auditWriteFailures.Inc()
	}

	code := models.ErrorCode(err)
	message := err.Error()
	if code == "Internal" || code == "StoreUnavailable" {
		// Internal detail stays in the logs.
		message = "internal error"
	}

	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

// caller returns the authenticated principal or writes a 401.
func caller(c fiber.Ctx) (models.Principal, bool) {
	principal, ok := identity.PrincipalFromCtx(c)
	if !ok {
		_ = c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
		return models.Principal{}, false
	}
	return principal, true
}

// requireAdmin returns the authenticated admin principal or writes the
// 401/403 response itself.
func requireAdmin(c fiber.Ctx) (models.Principal, bool) {
	principal, ok := caller(c)
	if !ok {
		return models.Principal{}, false
	}
	if !principal.IsAdmin() {
		_ = c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You don't have enough permission",
		})
		return models.Principal{}, false
	}
	return principal, true
}
