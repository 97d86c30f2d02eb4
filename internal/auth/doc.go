// Package auth authenticates HTTP requests with bearer credentials.
//
// Two verifiers are provided:
//
//   - StaticToken: a single shared secret, compared in constant time.
//   - JWTVerifier: HS256-signed JWTs whose "sub" claim names the caller.
//
// Middleware wraps an http.Handler, rejects requests without a valid
// credential and stores the verified subject in the request context:
//
//	h := auth.Middleware(auth.NewJWTVerifier(secret))(mux)
//	subject := auth.SubjectFromContext(r.Context())
package auth
