// Package instrumentation provides OpenTelemetry instrumentation for the oauth2-server library.
//
// When Config.Enabled is false, no-op providers are used and recording has no
// observable effect. When enabled, SDK providers are created unless the caller
// supplies its own MeterProvider or TracerProvider (for example one backed by
// an exporter or a manual reader).
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-oauth-service",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
// # Available Metrics
//
// HTTP Layer:
//   - oauth.http.requests.total{method, endpoint, status}
//   - oauth.http.request.duration{endpoint}
//
// OAuth Flows:
//   - oauth.authorization.started{client_id}
//   - oauth.code.exchanged{client_id}
//   - oauth.token.refreshed{client_id}
//   - oauth.access.checked{granted}
//   - oauth.grant.rejected{operation, error}
//
// Security:
//   - oauth.rate_limit.exceeded{limiter_type}
//   - oauth.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}, result is one of success,
//     not_found, aborted (an expected rejection rolled back by Atomic) or error
//   - storage.operation.duration{operation}, measured including the wait for the storage lock
//   - storage.purged.total{kind}
//
// # Security Considerations
//
// Traces and metrics carry metadata only. Authorization codes, tokens and
// client secrets are never recorded.
package instrumentation
