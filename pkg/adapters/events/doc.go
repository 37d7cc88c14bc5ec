// Package events provides event bus implementations for change notifications.
//
// Implementations:
//   - memory: in-process fan-out (single instance, tests)
//   - redis: Redis Streams with one consumer group per server instance
//   - nats: core NATS subjects
package events
