package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/kernel"
)

// TokenMiddleware is the Fiber bearer-auth middleware.
type TokenMiddleware struct {
	tokenService TokenService
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokenService TokenService) *TokenMiddleware {
	return &TokenMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates the bearer access token and injects the resulting
// kernel.AuthContext into the request locals.
func (am *TokenMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var token string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": iam.ErrUnauthorized().Error(),
			})
		}

		claims, err := am.tokenService.ValidateAccessToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": iam.ErrInvalidToken().Error(),
			})
		}

		authContext := &kernel.AuthContext{
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
			Email:     claims.Email,
			Role:      claims.Role,
		}

		c.Locals("auth", authContext)

		return c.Next()
	}
}

// RequireAdmin rejects requests whose authenticated principal does not
// hold the admin role. Must run after Authenticate.
func (am *TokenMiddleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authContext, ok := c.Locals("auth").(*kernel.AuthContext)
		if !ok || authContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": iam.ErrUnauthorized().Error(),
			})
		}

		if !authContext.IsAdmin() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": iam.ErrAccessDenied().Error(),
			})
		}

		return c.Next()
	}
}

// AuthFromContext extracts the authenticated principal previously injected
// by Authenticate, if any.
func AuthFromContext(c *fiber.Ctx) *kernel.AuthContext {
	authContext, _ := c.Locals("auth").(*kernel.AuthContext)
	return authContext
}
