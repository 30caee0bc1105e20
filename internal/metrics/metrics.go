package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionGauge is the current number of client connections being served.
	SessionGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "http2socks_sessions",
		Help: "Current number of client connections being served",
	}, []string{"upstream"})

	// SessionCounter is the total number of accepted client connections.
	SessionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http2socks_sessions_total",
		Help: "Total number of accepted client connections",
	}, []string{"upstream"})

	// OutcomeCounter counts tunnel attempts by classified result.
	OutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http2socks_handshake_outcomes_total",
		Help: "Tunnel attempts by handshake outcome",
	}, []string{"upstream", "outcome"})

	// RelayBytes counts bytes copied through established tunnels.
	RelayBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http2socks_relay_bytes_total",
		Help: "Bytes relayed through established tunnels",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(SessionGauge, SessionCounter, OutcomeCounter, RelayBytes)
}

// StartServer serves /metrics (or path) on addr until ctx is done.
func StartServer(ctx context.Context, addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	return server.ListenAndServe()
}
