// Package noop provides an authenticator that admits every request as
// the anonymous identity. It backs auth type "none".
package noop

import (
	"context"
	"net/http"

	"github.com/rhuss/mcp-census/pkg/auth"
)

// Authenticator always votes Yes.
type Authenticator struct{}

var _ auth.Authenticator = Authenticator{}

func (Authenticator) Authenticate(_ context.Context, _ *http.Request) auth.Result {
	id := auth.Anonymous
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
