package gateway

import (
	"context"
	"errors"
	"time"

	"folio/apitypes"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyResource  = tag.MustNewKey("resource")
	keyOperation = tag.MustNewKey("operation")
	keyOutcome   = tag.MustNewKey("outcome")

	callLatency = stats.Float64("folio/gateway/latency", "Latency of content API calls", stats.UnitMilliseconds)

	CallCountView = &view.View{
		Name:        "folio/gateway/calls",
		Description: "Counter of content API calls",
		TagKeys:     []tag.Key{keyResource, keyOperation, keyOutcome},
		Measure:     callLatency,
		Aggregation: view.Count(),
	}

	CallLatencyView = &view.View{
		Name:        "folio/gateway/latency",
		Description: "Distribution of content API call latency",
		TagKeys:     []tag.Key{keyResource, keyOperation},
		Measure:     callLatency,
		Aggregation: view.Distribution(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	}
)

// RegisterViews registers the gateway's OpenCensus views.
func RegisterViews() error {
	return view.Register(CallCountView, CallLatencyView)
}

// Outcome classifies err into the error taxonomy for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apitypes.ErrAuth):
		return "auth"
	case errors.Is(err, apitypes.ErrNotFound):
		return "not_found"
	case errors.Is(err, apitypes.ErrValidation):
		return "validation"
	case errors.Is(err, apitypes.ErrNetwork):
		return "network"
	default:
		return "other"
	}
}

func recordCall(ctx context.Context, resource, operation string, err error, elapsed time.Duration) {
	stats.RecordWithOptions(
		ctx,
		stats.WithTags(
			tag.Insert(keyResource, resource),
			tag.Insert(keyOperation, operation),
			tag.Insert(keyOutcome, Outcome(err)),
		),
		stats.WithMeasurements(callLatency.M(float64(elapsed)/float64(time.Millisecond))))
}
