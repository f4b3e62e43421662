package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the scrape endpoint handler. The refresh callback, when
// non-nil, runs before each scrape so structural gauges (queue depth,
// circuit counts, capacity) reflect the moment of collection rather than
// the last event.
func (r *Registry) Handler(refresh func()) http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
	if refresh == nil {
		return inner
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		refresh()
		inner.ServeHTTP(w, req)
	})
}
