// Package metric provides the Prometheus registry and HTTP endpoint for the
// bridge.
//
// Components receive a *MetricsRegistry through their dependency structs and
// register their own collectors with it. A nil registry disables metrics for
// that component:
//
//	func newMetrics(registry *metric.MetricsRegistry) *routerMetrics {
//	    if registry == nil {
//	        return nil
//	    }
//	    ...
//	}
//
// All bridge metric names use the "ammbridge" namespace. Server exposes them
// on the configured path together with a /health endpoint.
package metric
