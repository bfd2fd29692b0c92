// Package chat is the transport-independent core of the relay: the
// connection registry, the fixed-window rate limiter, the message formatter,
// the slash-command dispatcher, the broadcast engine and the per-connection
// protocol state machine.
//
// Transports implement Conn and feed Events into the Session returned by
// Hub.Connect. Registry and rate limiter state is guarded by mutexes, so
// sessions may run on separate goroutines.
package chat
