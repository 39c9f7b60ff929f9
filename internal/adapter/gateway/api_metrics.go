package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// metricsHandler serves GET /metrics in the Prometheus text format.
func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		gauge(w, "relayai_sessions_active", "Number of open conversations.", float64(len(s.deps.Sessions.List())))
		counter(w, "relayai_sessions_total", "Total conversations opened.", s.metrics.SessionsTotal.Load())
		counter(w, "relayai_messages_received_total", "Total user messages received.", s.metrics.MessagesRecv.Load())
		counter(w, "relayai_messages_sent_total", "Total replies sent.", s.metrics.MessagesSent.Load())
		gauge(w, "relayai_uptime_seconds", "Seconds since the gateway started.", time.Since(s.startTime).Seconds())

		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		gauge(w, "go_goroutines", "Number of goroutines.", float64(runtime.NumGoroutine()))
		gauge(w, "go_memstats_alloc_bytes", "Bytes of allocated heap objects.", float64(mem.Alloc))
	}
}

func counter(w http.ResponseWriter, name, help string, v int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
}

func gauge(w http.ResponseWriter, name, help string, v float64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %.0f\n", name, help, name, name, v)
}
