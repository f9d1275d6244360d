// Package auth verifies the bearer credentials presented by chat users.
//
// Tokens are HS256 JWTs signed with the configured jwt_secret. The user id is
// read from the "sub" claim, falling back to "userId" for tokens minted by
// older clients. Issuing tokens to end users is outside this service; the
// CLI can mint one for operators and tests:
//
//	verifier, err := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate("u1", 24*time.Hour)
//	userID, err := verifier.Verify(token)
//
// HTTPAuthMiddleware guards the REST API and stores a Caller on the
// request context. The realtime channel calls Verify directly when a
// connection sends its authenticate event.
package auth
