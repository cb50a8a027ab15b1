package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"lanos_go/config"

	"github.com/gofiber/fiber/v2"
)

func setupApp(t *testing.T) *fiber.App {
	t.Helper()
	config.AppConfig = &config.Config{JWTSecret: "0123456789abcdef-test", JWTExpiresIn: time.Hour}
	app := fiber.New()
	app.Get("/admin", JWTMiddleware(), RequireRole("admin"), func(c *fiber.Ctx) error {
		claims, err := GetCurrentClaims(c)
		if err != nil {
			return err
		}
		return c.SendString(claims.Username)
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	app := setupApp(t)
	adminToken, err := GenerateToken("admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	viewerToken, _ := GenerateToken("guest", "viewer")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", fiber.StatusUnauthorized},
		{"no bearer prefix", adminToken, fiber.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", fiber.StatusUnauthorized},
		{"wrong role", "Bearer " + viewerToken, fiber.StatusForbidden},
		{"admin", "Bearer " + adminToken, fiber.StatusOK},
	}
	for _, tc := range tests {
		req := httptest.NewRequest("GET", "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.name, resp.StatusCode, tc.want)
		}
	}
}

func TestParseTokenRejectsOtherSecret(t *testing.T) {
	setupApp(t)
	token, _ := GenerateToken("admin", "admin")
	config.AppConfig.JWTSecret = "a-different-secret-value"
	if _, err := ParseToken(token); err == nil {
		t.Fatalf("token signed with another secret must fail")
	}
}
