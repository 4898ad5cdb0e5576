// Package store holds the bridge's in-memory working set: recent event
// records, lab panel values and equipment settings.
//
// Each store guards itself with its own lock and every method is safe for
// concurrent use. Critical sections are a single map operation or a copy;
// nothing blocks on I/O while holding a lock.
package store
