package csrfsrv

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meridianid/authd/pkg/iam/auth"
)

// RequireCSRFToken rejects state-changing requests lacking a valid
// X-CSRF-Token header. GET/HEAD/OPTIONS requests are exempt, since CSRF
// protects against state mutation, not reads.
func (s *Service) RequireCSRFToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		token := c.Get("X-CSRF-Token")
		valid, err := s.ValidateToken(c.UserContext(), token)
		if err != nil {
			return err
		}
		if !valid {
			return auth.ErrCSRFTokenInvalid()
		}

		return c.Next()
	}
}
