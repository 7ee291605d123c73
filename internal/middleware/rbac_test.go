package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func roleApp(role, minimum string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if role != "" {
			c.Locals("user_role", role)
		}
		return c.Next()
	})
	app.Get("/guarded", RequireRole(minimum), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleRanksRoles(t *testing.T) {
	cases := []struct {
		role    string
		minimum string
		status  int
	}{
		{role: "admin", minimum: RoleAdmin, status: fiber.StatusOK},
		{role: "Administrator", minimum: RoleAdmin, status: fiber.StatusOK},
		{role: "admin", minimum: RoleModerator, status: fiber.StatusOK},
		{role: "mod", minimum: RoleModerator, status: fiber.StatusOK},
		{role: "moderator", minimum: RoleAdmin, status: fiber.StatusForbidden},
		{role: "student", minimum: RoleModerator, status: fiber.StatusForbidden},
		{role: "student", minimum: RolePlayer, status: fiber.StatusOK},
		{role: "", minimum: RolePlayer, status: fiber.StatusForbidden},
		{role: "root", minimum: RolePlayer, status: fiber.StatusForbidden},
	}

	for _, tc := range cases {
		resp, err := roleApp(tc.role, tc.minimum).Test(httptest.NewRequest(http.MethodGet, "/guarded", nil))
		require.NoError(t, err)
		require.Equal(t, tc.status, resp.StatusCode, "role %q minimum %q", tc.role, tc.minimum)
	}
}

func TestRequireRoleUnknownMinimumMeansAdmin(t *testing.T) {
	resp, err := roleApp("moderator", "owner").Test(httptest.NewRequest(http.MethodGet, "/guarded", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	require.Equal(t, RoleAdmin, CanonicalRole(" SuperAdmin "))
	require.Empty(t, CanonicalRole("guest"))
}
