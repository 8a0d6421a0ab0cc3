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

// Package metrics defines the engine's Prometheus metrics and recorder helpers.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// labels definition
const (
	// result labels
	ResultSuccess = "success"
	ResultFailed  = "failed"

	// cache lookup labels
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"

	// size bucket labels
	Bucket100   = "100"   // less than 100 requests
	Bucket1000  = "1000"  // less than 1000 requests
	Bucket10000 = "10000" // less than 10000 requests
	Bucket30000 = "30000" // less than 30000 requests
	BucketLarge = "large" // 30000 requests or more
)

func GetSizeBucket(totalLines int) string {
	switch {
	case totalLines < 100:
		return Bucket100
	case totalLines < 1000:
		return Bucket1000
	case totalLines < 10000:
		return Bucket10000
	case totalLines < 30000:
		return Bucket30000
	default:
		return BucketLarge
	}
}

var (
	// Submit calls by outcome; reason is the failing stage or "none".
	submitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_submits_total",
			Help: "Total number of Submit calls by result and failing stage",
		}, []string{"result", "reason"},
	)

	submitsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llm_batch_submits_in_flight",
			Help: "Current number of Submit calls being processed",
		},
	)

	jobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_batch_jobs_submitted_total",
			Help: "Total number of batch jobs created on the batch service",
		},
	)

	// terminal status of each job as reported by the batch service
	jobOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_job_outcomes_total",
			Help: "Total number of batch jobs by terminal status",
		}, []string{"status"},
	)

	// Buckets from 1s doubling up to ~9h; jobs may take up to the 24h completion window.
	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_batch_job_duration_seconds",
			Help:    "Duration from job creation to terminal status in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"size_bucket"},
	)

	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_job_polls_total",
			Help: "Total number of job status polls by observed status",
		}, []string{"status"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		}, []string{"result"},
	)

	chunkSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llm_batch_chunk_size",
			Help:    "Number of requests per submitted batch job",
			Buckets: prometheus.ExponentialBuckets(1, 4, 9),
		},
	)

	// current number of runner workers processing an input file
	activeWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "llm_batch_runner_active_workers",
			Help: "Current number of active workers processing input files",
		},
	)

	filesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_batch_runner_files_processed_total",
			Help: "Total number of input files processed by the runner",
		}, []string{"result"},
	)

	reconciledEntries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_batch_reconciled_entries_total",
			Help: "Total number of cache entries written by external reconciliation",
		},
	)
)

func init() {
	prometheus.MustRegister(submitsTotal)
	prometheus.MustRegister(submitsInFlight)
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobOutcomes)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(pollsTotal)
	prometheus.MustRegister(cacheLookups)
	prometheus.MustRegister(chunkSize)
	prometheus.MustRegister(reconciledEntries)
	prometheus.MustRegister(activeWorkers)
	prometheus.MustRegister(filesProcessed)
}

// Recorder funcs

// RecordSubmitStart increments the in-flight gauge.
func RecordSubmitStart() {
	submitsInFlight.Inc()
}

// RecordSubmitFinish decrements the in-flight gauge and counts the outcome.
func RecordSubmitFinish(result, reason string) {
	submitsInFlight.Dec()
	submitsTotal.WithLabelValues(result, reason).Inc()
}

func RecordJobSubmitted(requests int) {
	jobsSubmitted.Inc()
	chunkSize.Observe(float64(requests))
}

// RecordJobOutcome counts a terminal job and observes how long it ran.
func RecordJobOutcome(status string, duration time.Duration, requests int) {
	jobOutcomes.WithLabelValues(status).Inc()
	jobDuration.WithLabelValues(GetSizeBucket(requests)).Observe(duration.Seconds())
}

func RecordPoll(status string) {
	pollsTotal.WithLabelValues(status).Inc()
}

func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func RecordReconciled(n int) {
	reconciledEntries.Add(float64(n))
}

func RecordWorkerStart() {
	activeWorkers.Inc()
}

func RecordWorkerFinish(result string) {
	activeWorkers.Dec()
	filesProcessed.WithLabelValues(result).Inc()
}
