// Package auth provides JWT authentication for the signalink realtime edge.
//
// WebSocket upgrades carry a bearer token in the query string. Tokens are
// HMAC-signed (HS256 by default) and must carry a "sub" claim holding the
// user UUID and a "username" claim; "jti" is carried through when present.
//
// Verify a token:
//
//	verifier, err := auth.NewJWTVerifier(secret, "HS256")
//	claims, err := verifier.Verify(tokenString)
//
// Mint a development token:
//
//	token, err := verifier.Generate(userID, username, 30*time.Minute)
//
// Verification failures map onto ErrInvalidToken, ErrExpiredToken, and
// ErrMissingClaim so callers can choose close codes without string matching.
package auth
