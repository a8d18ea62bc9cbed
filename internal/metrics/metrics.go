// Package metrics owns the Prometheus series exported by the bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Inbound webhook signals by outcome"},
		[]string{"outcome"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "reduce_only"},
	)
	PositionFlipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "position_flips_total", Help: "Opposing positions closed before opening"},
		[]string{"symbol"},
	)
	ExchangeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exchange_requests_total", Help: "Outbound exchange calls by endpoint and HTTP status"},
		[]string{"endpoint", "status"},
	)
	TickerUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticker_updates_total", Help: "Last-price updates received from the public stream"},
		[]string{"symbol"},
	)
	ExchangeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_request_duration_seconds",
			Help:    "Latency of outbound exchange calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(SignalsTotal, OrdersTotal, PositionFlipsTotal, ExchangeRequestsTotal, TickerUpdatesTotal, ExchangeRequestDuration)
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve starts a /metrics listener in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
