// Package tools groups the MCP tools served by mcp-census.
//
// The registry subpackage aggregates tool providers and installs them on an
// mcp.Server together with metrics, logging and panic recovery. Providers
// live under builtins: censusapi wraps the Census Data API and
// datasetsearch queries the dataset catalog index.
package tools
