package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meridianid/authd/pkg/kernel"
)

// JWTService implements TokenService using two independently configured
// HMAC secrets: a short-lived one for access tokens and a long-lived one
// for refresh tokens. Using distinct secrets means a leaked access secret
// can never be replayed to mint a refresh token.
type JWTService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
}

// NewJWTService creates a new JWT-backed token service.
func NewJWTService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, issuer, audience string) *JWTService {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	if issuer == "" {
		issuer = "meridian-auth"
	}
	if audience == "" {
		audience = "meridian-api"
	}

	return &JWTService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		issuer:        issuer,
		audience:      audience,
	}
}

// JWTClaims is the custom claim set carried by both access and refresh
// tokens. FamilyID and SessionID are always populated so that the session
// engine can perform family-head reuse detection without a second lookup.
type JWTClaims struct {
	UserID    kernel.UserID `json:"userId"`
	Email     string        `json:"email"`
	Role      kernel.Role   `json:"role"`
	FamilyID  string        `json:"familyId"`
	SessionID string        `json:"sessionId"`
	jwt.RegisteredClaims
}

func (j *JWTService) registeredClaims(userID kernel.UserID, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Issuer:    j.issuer,
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{j.audience},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

func (j *JWTService) sign(claims JWTClaims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", ErrTokenGenerationFailed().WithDetail("error", err.Error())
	}
	return signed, nil
}

// IssueAccess mints a short-lived access token carrying the given identity
// and session linkage.
func (j *JWTService) IssueAccess(userID kernel.UserID, email string, role kernel.Role, familyID, sessionID string) (string, error) {
	claims := JWTClaims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		FamilyID:         familyID,
		SessionID:        sessionID,
		RegisteredClaims: j.registeredClaims(userID, j.accessTTL),
	}
	return j.sign(claims, j.accessSecret)
}

// IssueRefresh mints a long-lived refresh token sharing the same claim
// shape as the access token, signed with the separate refresh secret.
func (j *JWTService) IssueRefresh(userID kernel.UserID, email string, role kernel.Role, familyID, sessionID string) (string, error) {
	claims := JWTClaims{
		UserID:           userID,
		Email:            email,
		Role:             role,
		FamilyID:         familyID,
		SessionID:        sessionID,
		RegisteredClaims: j.registeredClaims(userID, j.refreshTTL),
	}
	return j.sign(claims, j.refreshSecret)
}

func (j *JWTService) parse(tokenString string, secret []byte) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithAudience(j.audience),
		jwt.WithLeeway(5*time.Second),
	)
	if err != nil {
		return nil, ErrTokenValidationFailed().WithDetail("error", err.Error())
	}
	if !token.Valid {
		return nil, ErrTokenValidationFailed().WithDetail("error", "token is invalid")
	}
	return claims, nil
}

// ValidateAccessToken verifies signature, issuer, audience and expiry of an
// access token without consulting any store.
func (j *JWTService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	claims, err := j.parse(tokenString, j.accessSecret)
	if err != nil {
		return nil, err
	}
	return toTokenClaims(claims), nil
}

// ValidateRefreshToken verifies a refresh token's signature, issuer,
// audience and expiry. Family-head reuse detection happens one layer up in
// the session engine, which needs the raw token string as well as the
// decoded claims.
func (j *JWTService) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	claims, err := j.parse(tokenString, j.refreshSecret)
	if err != nil {
		return nil, err
	}
	return toTokenClaims(claims), nil
}

func toTokenClaims(c *JWTClaims) *TokenClaims {
	var issuedAt, expiresAt time.Time
	if c.IssuedAt != nil {
		issuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		expiresAt = c.ExpiresAt.Time
	}
	return &TokenClaims{
		UserID:    c.UserID,
		Email:     c.Email,
		Role:      c.Role,
		FamilyID:  c.FamilyID,
		SessionID: c.SessionID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
}

