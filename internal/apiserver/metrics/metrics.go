/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// The file defines the api server's Prometheus metrics and the functions recording them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_apiserver_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "llm_batch_apiserver_http_request_duration_seconds",
			Help: "HTTP request duration in seconds by route",
			// generate calls wait for whole batch jobs, so the range runs from 10ms to ~23h
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 12),
		},
		[]string{"method", "route"},
	)
	httpRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llm_batch_apiserver_http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)
	generateRequests = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llm_batch_apiserver_generate_requests",
			Help:    "Number of chat requests per generate call",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsInFlight)
	prometheus.MustRegister(generateRequests)
}

func RecordRequestStart() {
	httpRequestsInFlight.Inc()
}

func RecordRequestFinish(method, route, status string, duration time.Duration) {
	httpRequestsInFlight.Dec()
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func RecordGenerateSize(requests int) {
	generateRequests.Observe(float64(requests))
}
