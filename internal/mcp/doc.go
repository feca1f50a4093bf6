// Package mcp exposes the repository index as Model Context Protocol tools.
//
// The server registers repository_exists, repository_create,
// repository_index and repository_search on top of the MCP SDK
// (github.com/modelcontextprotocol/go-sdk/mcp) and forwards every call to
// the indexer service. It is served over stdio by "repoindex mcp".
package mcp
