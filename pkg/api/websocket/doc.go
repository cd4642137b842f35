// Package websocket provides real-time event streaming via WebSocket.
//
// Clients connect to /api/v1/events/ws to receive orchestration lifecycle
// events as they happen, optionally filtered to one execution.
package websocket
