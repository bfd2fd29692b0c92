// Package server implements the network side of the chat relay.
//
// A raw TCP listener and a WebSocket gateway both adapt their connections to
// chat.Conn and hand them to a shared chat.Hub. Each connection gets a read
// pump that turns inbound lines into session events and a write pump that
// drains a bounded outbound queue, so a slow peer never blocks the others.
// The HTTP side also serves health, stats, and Prometheus metrics.
package server
