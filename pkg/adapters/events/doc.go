// Package events provides event bus implementations.
//
// Implementations:
//   - redis: Redis Streams for cross-process consumers
//   - memory: In-memory fan-out for single-node deployments and testing
package events
