package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-arena/internal/utils"
)

// Arena roles, lowest to highest.
const (
	RolePlayer    = "player"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

var roleRank = map[string]int{
	RolePlayer:    1,
	RoleModerator: 2,
	RoleAdmin:     3,
}

var roleAliases = map[string]string{
	"administrator": RoleAdmin,
	"superadmin":    RoleAdmin,
	"mod":           RoleModerator,
	"student":       RolePlayer,
	"user":          RolePlayer,
}

// CanonicalRole maps a token role onto an arena role. Unknown roles map to the empty string.
func CanonicalRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if alias, ok := roleAliases[role]; ok {
		role = alias
	}
	if _, ok := roleRank[role]; !ok {
		return ""
	}
	return role
}

// RequireRole admits callers whose role ranks at least as high as minimum.
func RequireRole(minimum string) fiber.Handler {
	required, ok := roleRank[CanonicalRole(minimum)]
	if !ok {
		required = roleRank[RoleAdmin]
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("user_role").(string)
		if roleRank[CanonicalRole(role)] < required {
			return utils.SendErrorCode(c, fiber.StatusForbidden, "forbidden", "insufficient permissions")
		}
		return c.Next()
	}
}
