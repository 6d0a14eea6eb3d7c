// Package transport provides the HTTP middleware shared by the MCP HTTP
// endpoints: panic recovery, request IDs (X-Request-ID) and access
// logging via log/slog, plus the JSON error body written by the server
// itself.
//
// Middleware has the plain func(http.Handler) http.Handler shape so it
// composes with the auth and metrics middleware. Chain(a, b, c) runs a
// outermost.
package transport
