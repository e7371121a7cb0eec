// Package auth issues and verifies the signed session tokens that identify a
// caller and the tenant they act for.
//
// Tokens are HS256 JWTs with the user id in "sub", plus "email" and
// "tenant_id" claims:
//
//	tm, _ := auth.NewTokenManager(secret, time.Hour)
//	token, _ := tm.Issue(auth.Identity{UserID: u, Email: "a@b.c", TenantID: t})
//	identity, err := tm.Verify(token)
//
// Verified identities become a *Principal on the request context, read back
// with PrincipalFromContext.
package auth
