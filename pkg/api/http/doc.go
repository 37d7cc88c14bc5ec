// Package http provides the HTTP API of the change-notification server.
//
// The HTTP server exposes endpoints for:
//   - The realtime change stream (Server-Sent Events and WebSocket)
//   - Change notifications from other backend services
//   - Status queries
//   - Health checks
//   - Prometheus metrics
package http
