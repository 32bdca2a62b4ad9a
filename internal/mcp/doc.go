// Package mcp exposes productqa as Model Context Protocol tools.
//
// The server runs over stdio using the MCP SDK
// (github.com/modelcontextprotocol/go-sdk/mcp) and offers two tools:
// ask_product, which answers a catalog question, and ingest_status, which
// reports the latest ingestion run. Provider error details are logged and
// never returned to clients.
package mcp
