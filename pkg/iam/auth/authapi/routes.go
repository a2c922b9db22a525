package authapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/meridianid/authd/pkg/iam/auth"
)

// RegisterRoutes mounts the full wire surface from spec.md §6 under the
// given router group (the caller mounts this at /api/v1). csrfMW guards
// every state-changing request; authMW guards every bearer-only route.
func RegisterRoutes(router fiber.Router, h *Handler, authMW *auth.TokenMiddleware, csrfMW fiber.Handler) {
	g := router.Group("/auth")

	g.Get("/csrf-token", h.CSRFToken)
	g.Post("/register", csrfMW, h.Register)
	g.Post("/login", csrfMW, h.Login)
	g.Post("/refresh", csrfMW, h.Refresh)
	g.Post("/logout", csrfMW, h.Logout)
	g.Post("/verify-email", csrfMW, h.VerifyEmail)
	g.Post("/forgot-password", csrfMW, h.ForgotPassword)
	g.Post("/reset-password", csrfMW, h.ResetPassword)
	g.Post("/change-password", authMW.Authenticate(), csrfMW, h.ChangePassword)
	g.Get("/me", authMW.Authenticate(), h.Me)

	// Static "linked" must be registered before the ":provider" wildcard so
	// it is not swallowed by the param route.
	g.Get("/oauth/linked", authMW.Authenticate(), h.LinkedProviders)
	g.Get("/oauth/:provider/callback", h.OAuthCallback)
	g.Get("/oauth/:provider", h.OAuthAuthorize)
	g.Delete("/oauth/:provider", authMW.Authenticate(), csrfMW, h.UnlinkProvider)

	router.Get("/sessions", authMW.Authenticate(), h.ListSessions)
	router.Delete("/sessions/other", authMW.Authenticate(), csrfMW, h.RevokeOtherSessions)
	router.Delete("/sessions/:id", authMW.Authenticate(), csrfMW, h.RevokeSession)
}
