// Package auth guards the HTTP transport of the MCP server.
//
// Authenticators vote Yes, No or Abstain on a request's credentials and a
// Chain evaluates them in order, falling back to a default decision when
// every authenticator abstains. Middleware runs the chain, enforces the
// optional per-tier rate limit and stores the caller's Identity in the
// request context. Health, readiness and metrics endpoints bypass it.
package auth
