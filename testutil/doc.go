// Package testutil provides in-memory collaborators for bridge tests: a NATS
// transport, recording publisher and sender fakes, and an embedded NATS
// server helper.
package testutil
