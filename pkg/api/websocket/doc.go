// Package websocket provides the change stream over WebSocket.
//
// Clients connect to /api/events/ws?token=<jwt> and receive one text
// message per change, carrying the same {"type":"<kind>"} body as the
// Server-Sent Events stream.
package websocket
