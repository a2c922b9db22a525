package authapi

import (
	"strings"
	"time"

	"github.com/meridianid/authd/pkg/iam/auth"
	"github.com/meridianid/authd/pkg/iam/auth/sessionsrv"
)

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	UserName  *string `json:"userName"`
}

func (r registerRequest) validate() map[string]string {
	fields := map[string]string{}
	if !looksLikeEmail(r.Email) {
		fields["email"] = "must be a valid email address"
	}
	if strings.TrimSpace(r.FirstName) == "" {
		fields["firstName"] = "is required"
	}
	if strings.TrimSpace(r.LastName) == "" {
		fields["lastName"] = "is required"
	}
	if r.Password == "" {
		fields["password"] = "is required"
	}
	return fields
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) validate() map[string]string {
	fields := map[string]string{}
	if !looksLikeEmail(r.Email) {
		fields["email"] = "must be a valid email address"
	}
	if r.Password == "" {
		fields["password"] = "is required"
	}
	return fields
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func looksLikeEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at > 0 && at < len(s)-1 && strings.Contains(s[at+1:], ".")
}

// tokenPairResponse mirrors auth.TokenPair; kept distinct so the wire shape
// never silently changes if the domain struct grows internal-only fields.
type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func toTokenPairResponse(t *auth.TokenPair) tokenPairResponse {
	return tokenPairResponse{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

// sessionResponse is the wire shape for one entry in GET /sessions.
type sessionResponse struct {
	ID          string     `json:"id"`
	IP          string     `json:"ip"`
	UserAgent   string     `json:"userAgent"`
	LoginMethod string     `json:"loginMethod"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	IsCurrent   bool       `json:"isCurrent"`
}

func toSessionResponses(views []sessionsrv.SessionView) []sessionResponse {
	out := make([]sessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, sessionResponse{
			ID:          v.ID,
			IP:          v.IP,
			UserAgent:   v.UserAgent,
			LoginMethod: v.LoginMethod,
			LastUsedAt:  v.LastUsedAt,
			LastLoginAt: v.LastLoginAt,
			CreatedAt:   v.CreatedAt,
			ExpiresAt:   v.ExpiresAt,
			IsCurrent:   v.IsCurrent,
		})
	}
	return out
}

// linkedProviderResponse is the wire shape for one entry in GET
// /auth/oauth/linked.
type linkedProviderResponse struct {
	Provider  string    `json:"provider"`
	LinkedAt  time.Time `json:"linkedAt"`
}

func toLinkedProviderResponses(accounts []*auth.OAuthAccount) []linkedProviderResponse {
	out := make([]linkedProviderResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, linkedProviderResponse{Provider: string(a.Provider), LinkedAt: a.CreatedAt})
	}
	return out
}
