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
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc/codes"
)

const (
	meterName = "bigtable.googleapis.com/internal/client/"

	metricNameOperationLatencies   = "operation_latencies"
	metricNameAttemptLatencies     = "attempt_latencies"
	metricNameRetryCount           = "retry_count"
	metricNameAppBlockingLatencies = "application_blocking_latencies"

	metricLabelKeyProjectID  = "project_id"
	metricLabelKeyInstance   = "instance"
	metricLabelKeyAppProfile = "app_profile"
	metricLabelKeyTable      = "table"
	metricLabelKeyMethod     = "method"
	metricLabelKeyStatus     = "status"
	metricLabelKeyStreaming  = "streaming"
	metricLabelKeyClientName = "client_name"
)

// Latency histogram boundaries in milliseconds.
var bucketBounds = []float64{0.0, 0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1.0, 2.0, 3.0, 4.0, 5.0,
	6.0, 8.0, 10.0, 13.0, 16.0, 20.0, 25.0, 30.0, 40.0, 50.0, 65.0, 80.0, 100.0, 130.0,
	160.0, 200.0, 250.0, 300.0, 400.0, 500.0, 650.0, 800.0, 1000.0, 2000.0, 5000.0,
	10000.0, 20000.0, 50000.0, 100000.0}

// MetricsProvider is a wrapper for built in metrics meter provider.
type MetricsProvider interface {
	isMetricsProvider()
}

// NoopMetricsProvider can be used to disable built in metrics.
type NoopMetricsProvider struct{}

func (NoopMetricsProvider) isMetricsProvider() {}

// CustomOpenTelemetryMetricsProvider lets users supply their own OpenTelemetry
// MeterProvider that client side metrics should be recorded against.
type CustomOpenTelemetryMetricsProvider struct {
	MeterProvider otelmetric.MeterProvider
}

func (CustomOpenTelemetryMetricsProvider) isMetricsProvider() {}

func convertToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// builtinMetricsTracerFactory creates a tracer per operation and owns the
// instruments the tracers record to.
type builtinMetricsTracerFactory struct {
	enabled bool

	// Owned only when the factory created the provider itself.
	ownedProvider *sdkmetric.MeterProvider

	clientAttributes []attribute.KeyValue

	operationLatencies   otelmetric.Float64Histogram
	attemptLatencies     otelmetric.Float64Histogram
	appBlockingLatencies otelmetric.Float64Histogram
	retryCount           otelmetric.Int64Counter
}

func newBuiltinMetricsTracerFactory(ctx context.Context, project, instance, appProfile string, metricsProvider MetricsProvider) (*builtinMetricsTracerFactory, error) {
	tf := &builtinMetricsTracerFactory{
		clientAttributes: []attribute.KeyValue{
			attribute.String(metricLabelKeyProjectID, project),
			attribute.String(metricLabelKeyInstance, instance),
			attribute.String(metricLabelKeyAppProfile, appProfile),
			attribute.String(metricLabelKeyClientName, clientUserAgent),
		},
	}

	var mp otelmetric.MeterProvider
	switch p := metricsProvider.(type) {
	case NoopMetricsProvider:
		tf.enabled = false
		return tf, nil
	case CustomOpenTelemetryMetricsProvider:
		tf.enabled = true
		mp = p.MeterProvider
	default:
		// Collect by default. Without a reader attached the recordings are
		// dropped, but a reader can be registered through
		// CustomOpenTelemetryMetricsProvider when export is wanted.
		tf.enabled = true
		tf.ownedProvider = sdkmetric.NewMeterProvider()
		mp = tf.ownedProvider
	}

	meter := mp.Meter(meterName)
	return tf, tf.createInstruments(meter)
}

func (tf *builtinMetricsTracerFactory) createInstruments(meter otelmetric.Meter) error {
	var err error

	tf.operationLatencies, err = meter.Float64Histogram(
		metricNameOperationLatencies,
		otelmetric.WithDescription("Total time until final operation success or failure, including retries and backoff."),
		otelmetric.WithUnit("ms"),
		otelmetric.WithExplicitBucketBoundaries(bucketBounds...),
	)
	if err != nil {
		return err
	}

	tf.attemptLatencies, err = meter.Float64Histogram(
		metricNameAttemptLatencies,
		otelmetric.WithDescription("Client observed latency per RPC attempt."),
		otelmetric.WithUnit("ms"),
		otelmetric.WithExplicitBucketBoundaries(bucketBounds...),
	)
	if err != nil {
		return err
	}

	tf.appBlockingLatencies, err = meter.Float64Histogram(
		metricNameAppBlockingLatencies,
		otelmetric.WithDescription("The latency of the client application consuming available response data."),
		otelmetric.WithUnit("ms"),
		otelmetric.WithExplicitBucketBoundaries(bucketBounds...),
	)
	if err != nil {
		return err
	}

	tf.retryCount, err = meter.Int64Counter(
		metricNameRetryCount,
		otelmetric.WithDescription("The number of additional RPCs sent after the initial attempt."),
	)
	return err
}

func (tf *builtinMetricsTracerFactory) shutdown() {
	if tf.ownedProvider != nil {
		tf.ownedProvider.Shutdown(context.Background())
	}
}

// opTracer tracks one operation from first attempt to final status.
type opTracer struct {
	startTime    time.Time
	attemptCount int64
	status       codes.Code

	currAttempt attemptTracer

	// Cookies received from the server that must be echoed on the next
	// attempt of the same operation.
	cookies map[string]string

	appBlockingLatency float64
}

type attemptTracer struct {
	startTime time.Time
}

// builtinMetricsTracer is not safe for concurrent use. Each operation gets
// its own instance from the factory.
type builtinMetricsTracer struct {
	ctx            context.Context
	builtInEnabled bool

	tf *builtinMetricsTracerFactory

	tableName   string
	method      string
	isStreaming bool

	currOp opTracer
}

func (tf *builtinMetricsTracerFactory) createBuiltinMetricsTracer(ctx context.Context, tableName string, isStreaming bool) builtinMetricsTracer {
	if tableName == "" {
		tableName = "unspecified"
	}
	return builtinMetricsTracer{
		ctx:            ctx,
		builtInEnabled: tf.enabled,
		tf:             tf,
		tableName:      tableName,
		isStreaming:    isStreaming,
		currOp: opTracer{
			startTime: time.Now(),
			status:    codes.OK,
			cookies:   make(map[string]string),
		},
	}
}

func (mt *builtinMetricsTracer) setMethod(m string) {
	mt.method = m
}

func (mt *builtinMetricsTracer) setCurrOpStatus(status codes.Code) {
	mt.currOp.status = status
}

func (mt *builtinMetricsTracer) incrementAppBlockingLatency(latencyMs float64) {
	mt.currOp.appBlockingLatency += latencyMs
}

func (mt *builtinMetricsTracer) recordAttemptStart() {
	mt.currOp.attemptCount++
	mt.currOp.currAttempt = attemptTracer{startTime: time.Now()}
}

// recordAttemptCompletion records the attempt latency keyed by the attempt's
// own status, which can differ from the final operation status.
func (mt *builtinMetricsTracer) recordAttemptCompletion(err error) {
	if !mt.builtInEnabled {
		return
	}
	statusCode, _ := convertToGrpcStatusErr(err)
	elapsed := convertToMs(time.Since(mt.currOp.currAttempt.startTime))
	mt.tf.attemptLatencies.Record(mt.ctx, elapsed, otelmetric.WithAttributes(mt.attributes(statusCode)...))
}

// recordOperationCompletion is intended to be deferred at the start of an
// operation, after setCurrOpStatus has been given the final status.
func (mt *builtinMetricsTracer) recordOperationCompletion() {
	if !mt.builtInEnabled {
		return
	}
	attrs := otelmetric.WithAttributes(mt.attributes(mt.currOp.status)...)
	mt.tf.operationLatencies.Record(mt.ctx, convertToMs(time.Since(mt.currOp.startTime)), attrs)
	if mt.currOp.appBlockingLatency > 0 {
		mt.tf.appBlockingLatencies.Record(mt.ctx, mt.currOp.appBlockingLatency, attrs)
	}
	if retries := mt.currOp.attemptCount - 1; retries > 0 {
		mt.tf.retryCount.Add(mt.ctx, retries, attrs)
	}
}

func (mt *builtinMetricsTracer) attributes(status codes.Code) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(mt.tf.clientAttributes)+4)
	attrs = append(attrs, mt.tf.clientAttributes...)
	return append(attrs,
		attribute.String(metricLabelKeyTable, mt.tableName),
		attribute.String(metricLabelKeyMethod, mt.method),
		attribute.String(metricLabelKeyStatus, status.String()),
		attribute.Bool(metricLabelKeyStreaming, mt.isStreaming),
	)
}
