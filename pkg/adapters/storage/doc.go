// Package storage provides run-state storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory for single-node deployments and testing
package storage
