package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the Prometheus scrape handler. exporter is the
// handler bound to the OpenTelemetry registry; when it is nil the default
// registry is served so /metrics still exposes process and Go metrics.
func MetricsHandler(exporter http.Handler) http.Handler {
	if exporter != nil {
		return exporter
	}
	return promhttp.Handler()
}
