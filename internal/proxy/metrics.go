package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabvid_proxy_requests_total",
		Help: "Proxy requests by route and response class.",
	}, []string{"route", "code"})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grabvid_proxy_upstream_errors_total",
		Help: "Requests that failed at the upstream backend, by route.",
	}, []string{"route"})

	streamedBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grabvid_proxy_streamed_bytes_total",
		Help: "Artifact bytes relayed to clients.",
	})
)
