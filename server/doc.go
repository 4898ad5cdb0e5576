// Package server is the client-facing transport of the bridge.
//
// It accepts plain TCP clients and, when configured, WebSocket clients.
// Each connection gets a short random id and its own read goroutine that
// splits input on '\n' and hands every line to a Handler. Outbound lines
// are written with a per-connection mutex and a write deadline, and a '\n'
// is appended on the wire. A connection that exceeds the line limit or
// fails a write is closed.
package server
