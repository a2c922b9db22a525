package kernel

// ============================================================================
// Context Types
// ============================================================================

// AuthContext is the authentication context injected into each request
// after the bearer token has been validated.
type AuthContext struct {
	UserID    UserID `json:"user_id"`
	SessionID string `json:"session_id"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
}

// ============================================================================
// Validation Methods
// ============================================================================

// IsValid reports whether the AuthContext carries a usable identity.
func (ac *AuthContext) IsValid() bool {
	return ac != nil && !ac.UserID.IsEmpty() && ac.Role.Valid()
}

// IsAdmin reports whether the authenticated principal holds the admin role.
func (ac *AuthContext) IsAdmin() bool {
	return ac != nil && ac.Role.IsAdmin()
}

// ============================================================================
// Context Keys
// ============================================================================

type ContextKey string

const (
	// AuthContextKey is the key used to store *AuthContext in context.Context.
	AuthContextKey ContextKey = "auth_context"

	// UserContextKey is the key used to store UserID in context.Context.
	UserContextKey ContextKey = "user_id"

	// RequestIDKey is the key used to store the request id.
	RequestIDKey ContextKey = "request_id"
)
