// Package storage provides change storage implementations.
//
// Change storage keeps the most recent change per collection kind plus a
// revision counter used as the SSE event id.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: in-process, single instance
package storage
