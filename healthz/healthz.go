// Package healthz serves liveness and readiness endpoints.
package healthz

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type Handler struct {
	lock   sync.Mutex
	checks map[string]Check
}

func New() *Handler {
	return &Handler{
		checks: map[string]Check{},
	}
}

// AddReadinessCheck registers check under name.  /readyz fails while any
// registered check fails.
func (h *Handler) AddReadinessCheck(name string, check Check) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.checks[name] = check
}

func (h *Handler) Register(m *http.ServeMux) {
	m.HandleFunc("/healthz", h.livenessHandler)
	m.HandleFunc("/readyz", h.readinessHandler)
}

func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("200 OK"))
}

func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	h.lock.Lock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.lock.Unlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failed := false
	report := strings.Builder{}
	for _, name := range names {
		if err := checks[name](ctx); err != nil {
			failed = true
			fmt.Fprintf(&report, "[-] %s: %v\n", name, err)
			continue
		}
		fmt.Fprintf(&report, "[+] %s ok\n", name)
	}

	if failed {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write([]byte(report.String()))
}
