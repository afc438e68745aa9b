package identity

import (
	"fmt"
	"strings"

	"access_service/internal/models"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

const principalLocal = "principal"

// Claims mirrors the Keycloak access-token layout this service cares about.
// Token issuance and signature policy live in Keycloak; the gateway has
// already validated the token by the time it reaches us.
type Claims struct {
	jwt.RegisteredClaims
	PreferredUsername string `json:"preferred_username"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// FromToken extracts the principal from a bearer token.
func FromToken(tokenString, secret string) (models.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Principal{}, fmt.Errorf("error parsing token: %s", err)
	}
	if !token.Valid {
		return models.Principal{}, fmt.Errorf("invalid token")
	}

	return models.Principal{
		ID:       claims.Subject,
		Username: claims.PreferredUsername,
		Roles:    claims.RealmAccess.Roles,
	}, nil
}

// Middleware resolves the caller into a models.Principal. Bearer tokens win;
// gateway deployments that strip tokens fall back to the X-User-ID and
// X-User-Roles headers set by the middleware service.
func Middleware(secret string) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			principal, err := FromToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
			if err == nil {
				c.Locals(principalLocal, principal)
				return c.Next()
			}
		}

		if userID := c.Get("X-User-ID"); userID != "" {
			principal := models.Principal{
				ID:       userID,
				Username: c.Get("X-User-Name"),
			}
			if roles := c.Get("X-User-Roles"); roles != "" {
				for _, role := range strings.Split(roles, ",") {
					if role = strings.TrimSpace(role); role != "" {
						principal.Roles = append(principal.Roles, role)
					}
				}
			}
			c.Locals(principalLocal, principal)
		}

		return c.Next()
	}
}

// PrincipalFromCtx returns the authenticated caller, if any.
func PrincipalFromCtx(c fiber.Ctx) (models.Principal, bool) {
	principal, ok := c.Locals(principalLocal).(models.Principal)
	return principal, ok && principal.ID != ""
}
