// Package bus carries typed simulation messages over NATS.
//
// Every message kind has its own subject, "<prefix>.<type>", and travels as
// JSON. Bus implements Publisher for outbound traffic and dispatches inbound
// traffic to a Handlers implementation, one method per message kind.
//
// The transport is anything with NATS-style Publish and Subscribe, normally a
// *natsclient.Client. Handlers run on the transport's delivery goroutines and
// may be called concurrently for different subjects.
package bus
