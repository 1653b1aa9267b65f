// ABOUTME: JWT token verification for authenticating WebSocket upgrades
// ABOUTME: HMAC signing with configurable algorithm, claims sub/username/jti

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims is the identity carried by a verified access token.
type Claims struct {
	UserID   string // "sub", a user UUID
	Username string
	JTI      string // token id, may be empty
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// JWTVerifier implements TokenVerifier using HMAC-signed JWTs
type JWTVerifier struct {
	secret []byte
	method jwt.SigningMethod
}

// NewJWTVerifier creates a verifier for the given secret and algorithm.
// Only the HMAC family (HS256, HS384, HS512) is accepted.
func NewJWTVerifier(secret []byte, algorithm string) (*JWTVerifier, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q: only HMAC is supported", algorithm)
	}
	return &JWTVerifier{secret: secret, method: method}, nil
}

// Verify validates the token and extracts the user identity.
// The "sub" claim must be a UUID and "username" must be present.
func (v *JWTVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method matches the configured one
		if token.Method.Alg() != v.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if err := uuid.Validate(sub); err != nil {
		return nil, fmt.Errorf("%w: sub is not a UUID", ErrInvalidToken)
	}

	username, ok := claims["username"].(string)
	if !ok || username == "" {
		return nil, fmt.Errorf("%w: username", ErrMissingClaim)
	}

	jti, _ := claims["jti"].(string)

	return &Claims{UserID: sub, Username: username, JTI: jti}, nil
}

// Generate creates a new access token for the given user with expiration.
// Each token carries a fresh jti.
func (v *JWTVerifier) Generate(userID, username string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      userID,
		"username": username,
		"jti":      uuid.New().String(),
		"iat":      now.Unix(),
		"exp":      now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(v.method, claims)
	return token.SignedString(v.secret)
}
