package models

import "slices"

const AdminRole = "admin"

// Principal is the already-authenticated caller. Identity issuance and token
// validation belong to Keycloak; this service only consumes the result.
type Principal struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func (p Principal) IsAdmin() bool {
	return slices.Contains(p.Roles, AdminRole)
}

type DecisionReason string

const (
	ReasonAdminBypass          DecisionReason = "ADMIN_BYPASS"
	ReasonNoGrant              DecisionReason = "NO_GRANT"
	ReasonPermissionNotGranted DecisionReason = "PERMISSION_NOT_GRANTED"
	ReasonGranted              DecisionReason = "GRANTED"
)

// Decision is the resolver verdict for one (principal, document, action)
// triple. Reason is kept for the audit trail and never serialized to the
// denied caller.
type Decision struct {
	Allowed   bool           `json:"allowed"`
	Reason    DecisionReason `json:"-"`
	ExpiresAt int64          `json:"expiresAt,omitempty"`
}

// AccessFlags is the batched per-document capability set the UI consumes,
// computed from a single grant lookup.
type AccessFlags struct {
	CanView      bool `json:"canView"`
	CanDownload  bool `json:"canDownload"`
	CanOcr       bool `json:"canOcr"`
	CanAiSummary bool `json:"canAiSummary"`
}
