// Package auth provides API token authentication for the rights service.
//
// # API Tokens
//
// Tokens have the form todo_<base64url(32 random bytes)>. Only the SHA-256
// hash is stored, alongside a short display prefix:
//
//	manager := auth.NewTokenManager(auth.NewSQLTokenStore(db, dialect))
//	record, plaintext, err := manager.CreateToken(ctx, "alice", "ci", nil)
//
// ValidateToken maps a presented token back to its user id. Unknown, expired
// and revoked tokens all fail with ErrInvalidToken:
//
//	userID, err := manager.ValidateToken(ctx, plaintext)
//
// # Audit Logging
//
// AuditLogger writes security events (authentication failures, grant and
// revoke operations) as logrus entries carrying audit=true.
//
// # Related Packages
//
//   - pkg/middleware: bearer token middleware built on TokenManager
//   - pkg/authz: authorization of the authenticated user
package auth
