// Package errors provides standardized error handling patterns for the bridge.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: bus or socket hiccups (publish failures, timeouts). Logged and
//     skipped; the next message is processed normally.
//   - Invalid: malformed client input such as a capability document without a
//     module element. The offending unit of work is dropped and shared state is
//     left untouched.
//   - Fatal: bad configuration detected at startup.
//
// Nothing in the routing core returns a fatal error; fatal errors only come out
// of configuration loading and process startup.
//
// # Error Wrapping Pattern
//
// All wrapping follows "component.method: action failed: cause":
//
//	if err := doc.ReadFromString(raw); err != nil {
//	    return errors.WrapInvalid(err, "Negotiator", "parse", "read XML")
//	}
//
// Wrapped errors keep the chain intact for errors.Is and errors.As, so callers
// can test for sentinels such as ErrMalformedDocument regardless of depth.
package errors
