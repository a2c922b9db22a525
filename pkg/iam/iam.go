package iam

import (
	"net/http"

	"github.com/meridianid/authd/pkg/errx"
)

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeInvalidToken = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	CodeAccessDenied = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
	CodeForbidden    = ErrRegistry.Register("FORBIDDEN", errx.TypeAuthorization, http.StatusForbidden, "Forbidden")
)

// Helper functions
func ErrUnauthorized() *errx.Error {
	return ErrRegistry.New(CodeUnauthorized)
}

func ErrInvalidToken() *errx.Error {
	return ErrRegistry.New(CodeInvalidToken)
}

func ErrAccessDenied() *errx.Error {
	return ErrRegistry.New(CodeAccessDenied)
}

func ErrForbidden() *errx.Error {
	return ErrRegistry.New(CodeForbidden)
}

// OAuthProvider represents a supported OAuth identity provider.
type OAuthProvider string

const (
	OAuthProviderGoogle OAuthProvider = "GOOGLE"
	OAuthProviderGitHub OAuthProvider = "GITHUB"
)

// Valid reports whether p is one of the supported providers.
func (p OAuthProvider) Valid() bool {
	return p == OAuthProviderGoogle || p == OAuthProviderGitHub
}

// GetProviderName returns the human-readable provider name.
func (p OAuthProvider) GetProviderName() string {
	switch p {
	case OAuthProviderGoogle:
		return "Google"
	case OAuthProviderGitHub:
		return "GitHub"
	default:
		return "Unknown"
	}
}
