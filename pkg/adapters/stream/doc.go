// Package stream provides realtime.Dialer implementations.
//
// Implementations:
//   - sse: text/event-stream over plain HTTP (what browsers use)
//   - websocket: the same frames over a WebSocket connection
package stream
