// Package mcp exposes the turn orchestrator as Model Context Protocol tools.
//
// An MCP host (an agent runtime or desktop assistant) drives conversations
// through three tools: session_create, session_turn and session_expire.
// session_turn returns a compact summary as structured content and the
// full turn plan as JSON text.
package mcp
