// Package router delivers bus events to TCP clients.
//
// Each event maps to one or more topic keys: the measurement name for live
// values, HF_<name> for waveforms, and for structural events both a fixed
// label (AMM_Assessment, AMM_EventRecord and so on) and the event's own type.
// A client receives the event once if it subscribed to any of those keys.
//
// Assessments and modifications are enriched with the location and
// participant of the event record they reference. Records are remembered in
// a bounded store; a reference to an unknown record leaves those fields
// blank.
package router
