/*
Copyright 2026 Skylark Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bigtable

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestConvertToMs(t *testing.T) {
	if got := convertToMs(1500 * time.Microsecond); got != 1.5 {
		t.Errorf("convertToMs = %v, want 1.5", got)
	}
	if got := convertToMs(2 * time.Second); got != 2000 {
		t.Errorf("convertToMs = %v, want 2000", got)
	}
}

func TestMetricsDisabledByNoopProvider(t *testing.T) {
	tf, err := newBuiltinMetricsTracerFactory(context.Background(), "p", "i", "", NoopMetricsProvider{})
	if err != nil {
		t.Fatal(err)
	}
	if tf.enabled {
		t.Fatal("factory should be disabled")
	}

	// All recording paths must be safe no-ops with no instruments created.
	mt := tf.createBuiltinMetricsTracer(context.Background(), "tbl", false)
	mt.setMethod("ReadRow")
	mt.recordAttemptStart()
	mt.recordAttemptCompletion(nil)
	mt.setCurrOpStatus(codes.OK)
	mt.recordOperationCompletion()
}

func TestMetricsDefaultProviderOwned(t *testing.T) {
	tf, err := newBuiltinMetricsTracerFactory(context.Background(), "p", "i", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !tf.enabled {
		t.Fatal("metrics should be collected by default")
	}
	if tf.ownedProvider == nil {
		t.Fatal("default provider should be owned by the factory")
	}
	tf.shutdown()
}

func TestBuiltinMetricsRecording(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	tf, err := newBuiltinMetricsTracerFactory(ctx, "proj", "inst", "profile",
		CustomOpenTelemetryMetricsProvider{MeterProvider: mp})
	if err != nil {
		t.Fatal(err)
	}
	if tf.ownedProvider != nil {
		t.Fatal("custom provider must not be owned")
	}

	mt := tf.createBuiltinMetricsTracer(ctx, "", true)
	mt.setMethod("ReadRows")

	mt.recordAttemptStart()
	mt.recordAttemptCompletion(status.Error(codes.Unavailable, "mock"))
	mt.recordAttemptStart()
	mt.recordAttemptCompletion(nil)
	mt.incrementAppBlockingLatency(12.5)
	mt.setCurrOpStatus(codes.OK)
	mt.recordOperationCompletion()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}
	if len(rm.ScopeMetrics) != 1 {
		t.Fatalf("got %d scopes, want 1", len(rm.ScopeMetrics))
	}

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}

	attempts, ok := byName[metricNameAttemptLatencies].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("missing or mistyped %s", metricNameAttemptLatencies)
	}
	// Two attempts with different statuses land in separate series.
	if len(attempts.DataPoints) != 2 {
		t.Errorf("got %d attempt series, want 2", len(attempts.DataPoints))
	}

	ops, ok := byName[metricNameOperationLatencies].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("missing or mistyped %s", metricNameOperationLatencies)
	}
	if len(ops.DataPoints) != 1 || ops.DataPoints[0].Count != 1 {
		t.Fatalf("unexpected operation latency points %v", ops.DataPoints)
	}
	attrs := ops.DataPoints[0].Attributes
	for _, want := range []attribute.KeyValue{
		attribute.String(metricLabelKeyProjectID, "proj"),
		attribute.String(metricLabelKeyTable, "unspecified"),
		attribute.String(metricLabelKeyMethod, "ReadRows"),
		attribute.String(metricLabelKeyStatus, codes.OK.String()),
		attribute.Bool(metricLabelKeyStreaming, true),
	} {
		if got, ok := attrs.Value(want.Key); !ok || got != want.Value {
			t.Errorf("attribute %s = %v, want %v", want.Key, got, want.Value)
		}
	}

	retries, ok := byName[metricNameRetryCount].Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("missing or mistyped %s", metricNameRetryCount)
	}
	if len(retries.DataPoints) != 1 || retries.DataPoints[0].Value != 1 {
		t.Errorf("unexpected retry count points %v", retries.DataPoints)
	}

	blocking, ok := byName[metricNameAppBlockingLatencies].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("missing or mistyped %s", metricNameAppBlockingLatencies)
	}
	if len(blocking.DataPoints) != 1 || blocking.DataPoints[0].Sum != 12.5 {
		t.Errorf("unexpected app blocking points %v", blocking.DataPoints)
	}
}
