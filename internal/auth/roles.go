package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/inquirydesk/inquiry-service/pkg/util/errorutil"
)

// Role is carried in the token's role claim.
type Role string

const (
	RoleMember          Role = "member"
	RoleSupportOperator Role = "support_operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleMember || r == RoleSupportOperator
}

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthenticated("authentication required")
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewUnauthorized("insufficient role")
		}
		return c.Next()
	}
}
