package instrumentation

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestInstrumentation(t *testing.T) (*Instrumentation, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	inst, err := New(Config{
		Enabled:       true,
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })

	return inst, reader
}

// counterValue sums all data points of the named int64 counter that carry attr
// (or all data points when attr is the zero value).
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, attr attribute.KeyValue) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s is %T, want Sum[int64]", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if attr.Key != "" {
					v, found := dp.Attributes.Value(attr.Key)
					if !found || v != attr.Value {
						continue
					}
				}
				total += dp.Value
			}
		}
	}
	return total
}

func TestMetrics_RecordFlows(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordAuthorizationStarted(ctx, "client-a")
	m.RecordAuthorizationStarted(ctx, "client-b")
	m.RecordCodeExchange(ctx, "client-a")
	m.RecordTokenRefresh(ctx, "client-a")
	m.RecordTokenRefresh(ctx, "client-a")
	m.RecordAccessCheck(ctx, true)
	m.RecordAccessCheck(ctx, false)
	m.RecordAccessCheck(ctx, false)
	m.RecordGrantRejected(ctx, "token", "invalid_grant")

	tests := []struct {
		name   string
		metric string
		attr   attribute.KeyValue
		want   int64
	}{
		{"all authorizations", "oauth.authorization.started", attribute.KeyValue{}, 2},
		{"authorizations for client-b", "oauth.authorization.started", attribute.String("client_id", "client-b"), 1},
		{"code exchanges", "oauth.code.exchanged", attribute.KeyValue{}, 1},
		{"refreshes", "oauth.token.refreshed", attribute.String("client_id", "client-a"), 2},
		{"granted checks", "oauth.access.checked", attribute.Bool("granted", true), 1},
		{"denied checks", "oauth.access.checked", attribute.Bool("granted", false), 2},
		{"rejections", "oauth.grant.rejected", attribute.String("error", "invalid_grant"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := counterValue(t, reader, tt.metric, tt.attr); got != tt.want {
				t.Errorf("%s = %d, want %d", tt.metric, got, tt.want)
			}
		})
	}
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	inst.Metrics().RecordHTTPRequest(ctx, "GET", "/oauth/authorize", 307, 1.2)
	inst.Metrics().RecordHTTPRequest(ctx, "POST", "/oauth/token", 200, 3.4)
	inst.Metrics().RecordHTTPRequest(ctx, "POST", "/oauth/token", 400, 0.5)

	if got := counterValue(t, reader, "oauth.http.requests.total", attribute.String("endpoint", "/oauth/token")); got != 2 {
		t.Errorf("token requests = %d, want 2", got)
	}
	if got := counterValue(t, reader, "oauth.http.requests.total", attribute.Int("status", 307)); got != 1 {
		t.Errorf("redirects = %d, want 1", got)
	}
}

func TestMetrics_RecordStorage(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordStorageOperation(ctx, "insert_access_token", "success", 0.3)
	m.RecordStorageOperation(ctx, "find_access_token", "not_found", 0.1)
	m.RecordStoragePurge(ctx, "access_token", 4)
	m.RecordStoragePurge(ctx, "pending_authorization", 0)

	if got := counterValue(t, reader, "storage.operation.total", attribute.String("result", "success")); got != 1 {
		t.Errorf("successful operations = %d, want 1", got)
	}
	if got := counterValue(t, reader, "storage.purged.total", attribute.KeyValue{}); got != 4 {
		t.Errorf("purged = %d, want 4", got)
	}
}

func TestMetrics_RecordSecurityEvents(t *testing.T) {
	inst, reader := newTestInstrumentation(t)
	ctx := context.Background()

	inst.Metrics().RecordRateLimitExceeded(ctx, "ip")
	inst.Metrics().RecordAuditEvent(ctx, "authorization_code_issued")

	if got := counterValue(t, reader, "oauth.rate_limit.exceeded", attribute.String("limiter_type", "ip")); got != 1 {
		t.Errorf("rate limit violations = %d, want 1", got)
	}
	if got := counterValue(t, reader, "oauth.audit.events.total", attribute.KeyValue{}); got != 1 {
		t.Errorf("audit events = %d, want 1", got)
	}
}
