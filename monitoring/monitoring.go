// Package monitoring installs the Google Cloud profiling, tracing and metrics
// exporters shared by the folio binaries.
package monitoring

import (
	"context"
	"fmt"
	"time"

	"folio/gateway"
	"folio/httpmetrics"

	"cloud.google.com/go/profiler"
	"contrib.go.opencensus.io/exporter/stackdriver"
	cloudmetrics "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	cloudtrace "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/golang/glog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Options struct {
	// Service names the binary to the profiler and prefixes exported
	// metrics.
	Service string

	// Project overrides the project associated with Application Default
	// Credentials.
	Project string

	TraceRatio float64
	Profiling  bool
}

// Install starts every exporter.  The returned function flushes and stops
// them; call it before exiting.
func Install(ctx context.Context, opts Options) (func(), error) {
	if opts.Profiling {
		if err := profiler.Start(profiler.Config{
			Service:        opts.Service,
			ServiceVersion: "0.0.1",
			ProjectID:      opts.Project,
		}); err != nil {
			return nil, fmt.Errorf("while starting profiler: %w", err)
		}
	}

	metricsOpts := []cloudmetrics.Option{}
	traceOpts := []cloudtrace.Option{}
	if opts.Project != "" {
		metricsOpts = append(metricsOpts, cloudmetrics.WithProjectID(opts.Project))
		traceOpts = append(traceOpts, cloudtrace.WithProjectID(opts.Project))
	}

	_, traceShutdown, err := cloudtrace.InstallNewPipeline(traceOpts, sdktrace.WithSampler(sdktrace.TraceIDRatioBased(opts.TraceRatio)))
	if err != nil {
		return nil, fmt.Errorf("while installing Cloud Trace OpenTelemetry trace pipeline: %w", err)
	}

	pusher, err := cloudmetrics.InstallNewPipeline(metricsOpts)
	if err != nil {
		traceShutdown()
		return nil, fmt.Errorf("while installing Cloud Metrics OpenTelemetry meter pipeline: %w", err)
	}

	// The request and gateway views are OpenCensus; they go out through the
	// Stackdriver exporter.
	if err := httpmetrics.RegisterViews(); err != nil {
		return nil, fmt.Errorf("while registering HTTP views: %w", err)
	}
	if err := gateway.RegisterViews(); err != nil {
		return nil, fmt.Errorf("while registering gateway views: %w", err)
	}
	exporter, err := stackdriver.NewExporter(stackdriver.Options{
		ProjectID:         opts.Project,
		MetricPrefix:      opts.Service,
		ReportingInterval: 60 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("while creating Stackdriver exporter: %w", err)
	}
	if err := exporter.StartMetricsExporter(); err != nil {
		return nil, fmt.Errorf("while starting Stackdriver metrics exporter: %w", err)
	}

	return func() {
		exporter.Flush()
		exporter.StopMetricsExporter()
		pusher.Stop(ctx)
		traceShutdown()
		glog.Infof("Monitoring exporters stopped")
	}, nil
}
