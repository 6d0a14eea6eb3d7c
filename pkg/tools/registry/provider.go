// Package registry provides a pluggable framework for MCP tools.
// A Provider contributes a group of tools; the Registry aggregates
// providers, installs their tools on an mcp.Server and wraps tool calls
// with metrics, tracing and panic recovery.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Provider is a pluggable tool provider.
type Provider interface {
	// Name returns a unique identifier for this provider (e.g., "census_api").
	Name() string

	// Tools returns the tools this provider contributes.
	Tools() []Tool

	// Close releases any resources held by the provider.
	Close() error
}

// Handler is a typed tool handler. Its result is rendered as JSON text
// content; a returned error becomes a tool error the model can read.
type Handler[In any] func(ctx context.Context, in In) (any, error)

// Tool is a tool definition bound to its handler.
type Tool struct {
	Def     *mcp.Tool
	install func(s *mcp.Server)
}

// NewTool binds def to h. The input schema is inferred from In, so fields
// without omitempty are required.
func NewTool[In any](def *mcp.Tool, h Handler[In]) Tool {
	return Tool{
		Def: def,
		install: func(s *mcp.Server) {
			d := *def
			mcp.AddTool(s, &d, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
				out, err := h(ctx, in)
				if err != nil {
					return nil, nil, err
				}
				res, err := JSONResult(out)
				return res, nil, err
			})
		},
	}
}

// JSONResult renders v as a single JSON text content.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// ErrorResult is a tool error with the given message.
func ErrorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}
