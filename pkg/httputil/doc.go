// Package httputil provides HTTP helpers for JSON responses, request parsing
// and request-scoped middleware.
//
// # Response Helpers
//
//	httputil.WriteSuccess(w, roles)
//	httputil.WriteForbidden(w, "permission denied")
//
// # Request Parsing
//
//	roleID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//	if !ok {
//		return // error response already written
//	}
//
// # Middleware
//
//	router.Use(httputil.RequestContextMiddleware(logger), httputil.RecoveryMiddleware)
package httputil
