package authapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/iam"
	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/iam/auth/credentialsrv"
	"github.com/meridianid/authd/pkg/iam/auth/csrfsrv"
	"github.com/meridianid/authd/pkg/iam/auth/oauthsrv"
	"github.com/meridianid/authd/pkg/iam/auth/sessionsrv"
	"github.com/meridianid/authd/pkg/kernel"
)

// UserLookup is authapi's view onto the cache-aside user reader, used to
// serve GET /auth/me without round-tripping through a write-capable repo.
type UserLookup interface {
	GetByID(ctx context.Context, id kernel.UserID) (*auth.User, error)
}

// Handler holds every engine the auth router dispatches to. It has no
// state of its own beyond these collaborators.
type Handler struct {
	credentials     *credentialsrv.Service
	sessions        *sessionsrv.Service
	oauth           *oauthsrv.Service
	csrf            *csrfsrv.Service
	users           UserLookup
	frontendBaseURL string
}

func NewHandler(credentials *credentialsrv.Service, sessions *sessionsrv.Service, oauth *oauthsrv.Service, csrf *csrfsrv.Service, users UserLookup, frontendBaseURL string) *Handler {
	return &Handler{
		credentials:     credentials,
		sessions:        sessions,
		oauth:           oauth,
		csrf:            csrf,
		users:           users,
		frontendBaseURL: frontendBaseURL,
	}
}

// ============================================================================
// CSRF
// ============================================================================

func (h *Handler) CSRFToken(c *fiber.Ctx) error {
	token, err := h.csrf.GenerateToken(c.UserContext())
	if err != nil {
		return err
	}
	c.Set("X-CSRF-Token", token)
	return ok(c, fiber.StatusOK, fiber.Map{"csrfToken": token})
}

// ============================================================================
// Credentials
// ============================================================================

func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, map[string]string{"body": "malformed JSON"})
	}
	if fields := req.validate(); len(fields) > 0 {
		return validationError(c, fields)
	}

	user, tokens, err := h.credentials.Register(c.UserContext(), req.Email, req.Password, req.FirstName, req.LastName, req.UserName)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusCreated, fiber.Map{"user": user, "tokens": toTokenPairResponse(tokens)})
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, map[string]string{"body": "malformed JSON"})
	}
	if fields := req.validate(); len(fields) > 0 {
		return validationError(c, fields)
	}

	user, tokens, err := h.credentials.Login(c.UserContext(), req.Email, req.Password, c.IP(), string(c.Context().UserAgent()))
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"user": user, "tokens": toTokenPairResponse(tokens)})
}

func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return validationError(c, map[string]string{"refreshToken": "is required"})
	}

	tokens, err := h.sessions.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"tokens": toTokenPairResponse(tokens)})
}

func (h *Handler) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return validationError(c, map[string]string{"refreshToken": "is required"})
	}

	if err := h.sessions.Logout(c.UserContext(), req.RefreshToken); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "logged out")
}

func (h *Handler) VerifyEmail(c *fiber.Ctx) error {
	var req verifyEmailRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return validationError(c, map[string]string{"token": "is required"})
	}

	if err := h.credentials.VerifyEmail(c.UserContext(), req.Token); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "email verified")
}

func (h *Handler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if err := c.BodyParser(&req); err != nil || !looksLikeEmail(req.Email) {
		return validationError(c, map[string]string{"email": "must be a valid email address"})
	}

	// Errors are intentionally swallowed here too: RequestPasswordReset
	// already never returns one for "no such user", but any future
	// surprise must still not leak account existence.
	_ = h.credentials.RequestPasswordReset(c.UserContext(), req.Email)

	return okMessage(c, fiber.StatusOK, "if that email is registered, a reset link has been sent")
}

func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, map[string]string{"body": "malformed JSON"})
	}
	fields := map[string]string{}
	if req.Token == "" {
		fields["token"] = "is required"
	}
	if req.NewPassword == "" {
		fields["newPassword"] = "is required"
	}
	if len(fields) > 0 {
		return validationError(c, fields)
	}

	if err := h.credentials.ResetPassword(c.UserContext(), req.Token, req.NewPassword); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "password reset")
}

func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return validationError(c, map[string]string{"body": "malformed JSON"})
	}
	fields := map[string]string{}
	if req.CurrentPassword == "" {
		fields["currentPassword"] = "is required"
	}
	if req.NewPassword == "" {
		fields["newPassword"] = "is required"
	}
	if len(fields) > 0 {
		return validationError(c, fields)
	}

	if err := h.credentials.ChangePassword(c.UserContext(), authCtx.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "password changed")
}

func (h *Handler) Me(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	user, err := h.users.GetByID(c.UserContext(), authCtx.UserID)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"user": user})
}

// ============================================================================
// OAuth
// ============================================================================

func parseProvider(raw string) (iam.OAuthProvider, error) {
	p := iam.OAuthProvider(strings.ToUpper(raw))
	if !p.Valid() {
		return "", auth.ErrInvalidOAuthProvider()
	}
	return p, nil
}

func (h *Handler) OAuthAuthorize(c *fiber.Ctx) error {
	provider, err := parseProvider(c.Params("provider"))
	if err != nil {
		return err
	}

	authURL, err := h.oauth.AuthorizationURL(c.UserContext(), provider)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"authUrl": authURL})
}

// OAuthCallback always redirects to the frontend, on both success and
// failure, since the user's browser is mid-navigation and has no means to
// read a JSON body. Failures redirect with an error query parameter
// instead of tokens.
func (h *Handler) OAuthCallback(c *fiber.Ctx) error {
	provider, err := parseProvider(c.Params("provider"))
	if err != nil {
		return h.redirectOAuthError(c, err)
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return h.redirectOAuthError(c, auth.ErrOAuthCallbackError())
	}

	_, tokens, isNew, err := h.oauth.Callback(c.UserContext(), provider, code, state, c.IP(), string(c.Context().UserAgent()))
	if err != nil {
		return h.redirectOAuthError(c, err)
	}

	target := fmt.Sprintf("%s/oauth/callback?accessToken=%s&refreshToken=%s&isNewUser=%t",
		strings.TrimRight(h.frontendBaseURL, "/"),
		url.QueryEscape(tokens.AccessToken),
		url.QueryEscape(tokens.RefreshToken),
		isNew,
	)
	return c.Redirect(target, fiber.StatusFound)
}

func (h *Handler) redirectOAuthError(c *fiber.Ctx, err error) error {
	message := "oauth authentication failed"
	if e, ok := err.(*errx.Error); ok {
		message = e.Message
	}
	target := fmt.Sprintf("%s/oauth/callback?error=%s",
		strings.TrimRight(h.frontendBaseURL, "/"),
		url.QueryEscape(message),
	)
	return c.Redirect(target, fiber.StatusFound)
}

func (h *Handler) LinkedProviders(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	accounts, err := h.oauth.GetLinkedProviders(c.UserContext(), authCtx.UserID)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"providers": toLinkedProviderResponses(accounts)})
}

func (h *Handler) UnlinkProvider(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	provider, err := parseProvider(c.Params("provider"))
	if err != nil {
		return err
	}

	if err := h.oauth.UnlinkProvider(c.UserContext(), authCtx.UserID, provider); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "provider unlinked")
}

// ============================================================================
// Sessions
// ============================================================================

func (h *Handler) ListSessions(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	views, err := h.sessions.GetSessions(c.UserContext(), authCtx.UserID, authCtx.SessionID)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, fiber.Map{"sessions": toSessionResponses(views)})
}

func (h *Handler) RevokeOtherSessions(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	if err := h.sessions.RevokeOtherSessions(c.UserContext(), authCtx.UserID, authCtx.SessionID); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "other sessions revoked")
}

func (h *Handler) RevokeSession(c *fiber.Ctx) error {
	authCtx := auth.AuthFromContext(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}

	if err := h.sessions.RevokeSession(c.UserContext(), authCtx.UserID, c.Params("id")); err != nil {
		return err
	}

	return okMessage(c, fiber.StatusOK, "session revoked")
}
