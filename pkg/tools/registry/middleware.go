package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/observability"
)

// Tool call outcomes used as the status metric label.
const (
	StatusSuccess   = "success"
	StatusToolError = "tool_error"
	StatusError     = "error"
	StatusPanic     = "panic"
)

// Middleware returns receiving middleware that records metrics and a span
// for every tools/call, and turns panics in tool handlers into tool errors.
// Calls to unknown tools are counted under the "unknown" tool label.
func (r *Registry) Middleware() mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (result mcp.Result, err error) {
			call, ok := req.(*mcp.CallToolRequest)
			if method != "tools/call" || !ok || call.Params == nil {
				return next(ctx, method, req)
			}

			name := call.Params.Name
			label := name
			provider, known := r.ProviderFor(name)
			if !known {
				label = "unknown"
			}

			start := time.Now()
			ctx, span := observability.StartSpan(ctx, "tools/call "+label)
			span.SetAttributes(attribute.String("mcp.tool", name), attribute.String("mcp.provider", provider))
			defer span.End()

			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("tool handler panicked",
						"provider", provider,
						"tool", name,
						"panic", rec,
					)
					result = ErrorResult("internal error: tool %q panicked", name)
					err = nil
					record(label, StatusPanic, start)
				}
			}()

			result, err = next(ctx, method, req)

			status := StatusSuccess
			if err != nil {
				status = StatusError
				span.RecordError(err)
			} else if res, ok := result.(*mcp.CallToolResult); ok && res.IsError {
				status = StatusToolError
			}
			record(label, status, start)

			debug.Log("tools", "tool call",
				"tool", name,
				"status", status,
				"duration", time.Since(start).Round(time.Millisecond),
			)
			return result, err
		}
	}
}

func record(tool, status string, start time.Time) {
	observability.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	observability.ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}
