package httpmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opencensus.io/stats/view"
)

func TestWrapperCountsByCode(t *testing.T) {
	if err := RegisterViews(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer view.Unregister(RequestCountView, RequestLatencyView)

	h := New("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rows, err := view.RetrieveData(RequestCountView.Name)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	counts := map[string]int64{}
	for _, row := range rows {
		code := ""
		for _, tg := range row.Tags {
			if tg.Key == keyCode {
				code = tg.Value
			}
		}
		counts[code] = row.Data.(*view.CountData).Value
	}

	if counts["200"] != 2 || counts["404"] != 1 {
		t.Fatalf("Bad counts %v, want 2 for 200 and 1 for 404", counts)
	}
}
