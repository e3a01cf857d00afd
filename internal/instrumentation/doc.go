// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for the gmailrelay backend.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: by method, route and status
//   - google_api_operations_total, google_api_operation_duration_seconds:
//     calls to the OAuth token endpoint and the Gmail send endpoint
//   - oauth_exchange_total: authorization code exchanges by result
//   - emails_sent_total: send attempts by status (plus recipient_domain when
//     METRICS_DETAILED_LABELS is set)
//
// # Tracing
//
// Upstream calls get client spans named google.<service>.<operation>, for
// example google.oauth.exchange and google.gmail.send.
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: gmailrelay)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordHTTPRequest(ctx, "POST", "/api/send-email", 200, time.Since(start))
package instrumentation
