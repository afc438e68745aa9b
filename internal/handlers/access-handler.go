package handlers

import (
	"log"
	"strconv"
	"time"

	"access_service/internal/models"
	"access_service/internal/service"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter for access decisions by outcome and reason
	accessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of access decisions",
		},
		[]string{"outcome", "reason"},
	)

	// Counter for grant mutations by operation
	grantMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_grant_mutations_total",
			Help: "Total number of grant mutations",
		},
		[]string{"operation", "status"},
	)

	// Histogram for resolve latency
	resolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "access_resolve_duration_seconds",
			Help:    "Time spent resolving access decisions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// Counter for failed audit writes (each one fails an operation closed)
	auditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_audit_write_failures_total",
			Help: "Total number of failed audit writes",
		},
	)
)

// resolveOutcome labels the latency observation by what the resolver
// actually decided.
func resolveOutcome(decision models.Decision, err error) string {
	switch {
	case err != nil:
		return "error"
	case !decision.Allowed:
		return "deny"
	default:
		return "allow"
	}
}

type AccessHandler struct {
	grantService    *service.GrantService
	resolverService *service.ResolverService
	bulkService     *service.BulkService
}

func NewAccessHandler(grantService *service.GrantService, resolverService *service.ResolverService, bulkService *service.BulkService) *AccessHandler {
	return &AccessHandler{
		grantService:    grantService,
		resolverService: resolverService,
		bulkService:     bulkService,
	}
}

func (h *AccessHandler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/access", h.CreateGrant)
	app.Delete("/access/:userId/:documentId", h.RevokeGrant)
	app.Get("/access-grants", h.ListGrants)
	app.Post("/access/bulk", h.BulkGrant)
	app.Delete("/access/bulk", h.BulkRevoke)

	app.Post("/access/check", h.Check)
	app.Get("/documents/:documentId/permissions", h.DocumentPermissions)
}

func (h *AccessHandler) HealthCheck(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).SendString("OK")
}

func (h *AccessHandler) CreateGrant(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	var request struct {
		UserID      string    `json:"userId"`
		DocumentID  int       `json:"documentId"`
		Permissions []string  `json:"permissions"`
		ExpiresAt   time.Time `json:"expiresAt"`
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

	log.Printf("Admin %s granting access on document %d to user %s", admin.ID, request.DocumentID, request.UserID)

	grant, err := h.grantService.Grant(c.Context(), request.UserID, request.DocumentID, request.Permissions, request.ExpiresAt, admin.ID)
	if err != nil {
		grantMutations.WithLabelValues("grant", "failure").Inc()
		return fail(c, err)
	}
	grantMutations.WithLabelValues("grant", "success").Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": grant,
	})
}

func (h *AccessHandler) RevokeGrant(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	userID := c.Params("userId")
	documentID, err := strconv.Atoi(c.Params("documentId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document ID format",
		})
	}

	log.Printf("Admin %s revoking access on document %d for user %s", admin.ID, documentID, userID)

	if err := h.grantService.Revoke(c.Context(), userID, documentID, admin.ID); err != nil {
		grantMutations.WithLabelValues("revoke", "failure").Inc()
		return fail(c, err)
	}
	grantMutations.WithLabelValues("revoke", "success").Inc()

	return c.Status(fiber.StatusNoContent).Send(nil)
}

func (h *AccessHandler) ListGrants(c fiber.Ctx) error {
	if _, ok := requireAdmin(c); !ok {
		return nil
	}

	filter := models.GrantFilter{
		UserID: c.Query("userId"),
	}
	if documentID, err := strconv.Atoi(c.Query("documentId")); err == nil && documentID > 0 {
		filter.DocumentID = documentID
	}

	grants, err := h.grantService.ListActive(c.Context(), filter)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": grants,
	})
}

func (h *AccessHandler) BulkGrant(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	var request struct {
		UserID      string    `json:"userId"`
		DocumentIDs []int     `json:"documentIds"`
		Permissions []string  `json:"permissions"`
		ExpiresAt   time.Time `json:"expiresAt"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.UserID == "" || len(request.DocumentIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId and documentIds are required",
		})
	}

	log.Printf("Admin %s bulk-granting access on %d documents to user %s", admin.ID, len(request.DocumentIDs), request.UserID)

	result := h.bulkService.BulkGrant(c.Context(), request.UserID, request.DocumentIDs, request.Permissions, request.ExpiresAt, admin.ID)
	grantMutations.WithLabelValues("bulk_grant", "success").Add(float64(len(result.Succeeded)))
	grantMutations.WithLabelValues("bulk_grant", "failure").Add(float64(len(result.Failed)))

	return c.JSON(fiber.Map{
		"data": result,
	})
}

func (h *AccessHandler) BulkRevoke(c fiber.Ctx) error {
	admin, ok := requireAdmin(c)
	if !ok {
		return nil
	}

	var request struct {
		UserID      string `json:"userId"`
		DocumentIDs []int  `json:"documentIds"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.UserID == "" || len(request.DocumentIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId and documentIds are required",
		})
	}

	log.Printf("Admin %s bulk-revoking access on %d documents for user %s", admin.ID, len(request.DocumentIDs), request.UserID)

	result := h.bulkService.BulkRevoke(c.Context(), request.UserID, request.DocumentIDs, admin.ID)
	grantMutations.WithLabelValues("bulk_revoke", "success").Add(float64(len(result.Succeeded)))
	grantMutations.WithLabelValues("bulk_revoke", "failure").Add(float64(len(result.Failed)))

	return c.JSON(fiber.Map{
		"data": result,
	})
}

func (h *AccessHandler) Check(c fiber.Ctx) error {
	principal, ok := caller(c)
	if !ok {
		return nil
	}

	var request struct {
		DocumentID int    `json:"documentId"`
		Action     string `json:"action"`
	}
	if err := c.Bind().Body(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	start := time.Now()
	decision, err := h.resolverService.Resolve(c.Context(), principal, request.DocumentID, request.Action)
	resolveDuration.WithLabelValues(resolveOutcome(decision, err)).Observe(time.Since(start).Seconds())
	if err != nil {
		accessDecisions.WithLabelValues("error", string(decision.Reason)).Inc()
		return fail(c, err)
	}

	if !decision.Allowed {
		accessDecisions.WithLabelValues("deny", string(decision.Reason)).Inc()
		// The denial reason stays in the audit trail; the caller only
		// learns that access is denied.
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"allowed": false,
			"error":   "access denied",
		})
	}
	accessDecisions.WithLabelValues("allow", string(decision.Reason)).Inc()

	return c.JSON(decision)
}

func (h *AccessHandler) DocumentPermissions(c fiber.Ctx) error {
	principal, ok := caller(c)
	if !ok {
		return nil
	}

	documentID, err := strconv.Atoi(c.Params("documentId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid document ID format",
		})
	}

	flags, err := h.resolverService.ResolveAll(c.Context(), principal, documentID)
	if err != nil {
		return fail(c, err)
	}

	return c.JSON(fiber.Map{
		"data": flags,
	})
}
