// Package wire implements the line-oriented text protocol spoken by equipment
// module clients.
//
// Outbound records are built from key=value fields joined by ';' and, for
// value records, terminated by '|'. Structural records carry a bracketed
// marker such as [AMM_EventRecord] ahead of their fields. Embedded XML and
// binary payloads are base64 encoded with the URL-safe alphabet.
//
// Inbound lines are classified by ParseLine into requests, documents, system
// commands, keepalives, topic publications and opaque commands. Document
// payloads are decoded by DecodeDocument, which accepts either base64 alphabet
// or raw XML.
//
// The package does no I/O. Line terminators are appended by the transport.
package wire
