// Package httpmetrics counts the requests an http.Handler serves.
package httpmetrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/golang/glog"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	keyServer = tag.MustNewKey("server")
	keyMethod = tag.MustNewKey("method")
	keyCode   = tag.MustNewKey("code")

	requestLatency = stats.Float64("folio/http/latency", "Latency of served requests", stats.UnitMilliseconds)

	RequestCountView = &view.View{
		Name:        "folio/http/requests",
		Description: "Counter of requests that have been handled",
		TagKeys:     []tag.Key{keyServer, keyMethod, keyCode},
		Measure:     requestLatency,
		Aggregation: view.Count(),
	}

	RequestLatencyView = &view.View{
		Name:        "folio/http/latency",
		Description: "Distribution of request latency",
		TagKeys:     []tag.Key{keyServer},
		Measure:     requestLatency,
		Aggregation: view.Distribution(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	}
)

// RegisterViews registers the request views with OpenCensus.
func RegisterViews() error {
	return view.Register(RequestCountView, RequestLatencyView)
}

type Wrapper struct {
	server string
	inner  http.Handler
}

// New wraps inner.  server tags every measurement, so the site and the API
// can share one exporter.
func New(server string, inner http.Handler) *Wrapper {
	return &Wrapper{
		server: server,
		inner:  inner,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Wrapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

	h.inner.ServeHTTP(rec, r)

	elapsed := time.Since(start)
	if glog.V(1) {
		glog.Infof("Served server=%s method=%s path=%q code=%d elapsed=%v", h.server, r.Method, r.URL.Path, rec.code, elapsed)
	}

	stats.RecordWithOptions(
		r.Context(),
		stats.WithTags(
			tag.Insert(keyServer, h.server),
			tag.Insert(keyMethod, r.Method),
			tag.Insert(keyCode, strconv.Itoa(rec.code)),
		),
		stats.WithMeasurements(requestLatency.M(float64(elapsed)/float64(time.Millisecond))))
}
