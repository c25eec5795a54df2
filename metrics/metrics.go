// Package metrics provides Prometheus metrics for the MediaWiki remote
// helper. It tracks wiki API traffic, edit outcomes, and import volume.
//
// A remote helper is a short-lived child of git with no scrape endpoint,
// so the collected values are rendered as a session summary and logged on
// exit instead of being served.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const (
	Namespace = "git_mw"
)

var (
	// APIRequestsTotal counts wiki API calls by action and status
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "api_requests_total",
		Help:      "Total MediaWiki API requests by action and status",
	}, []string{"action", "status"})

	// APIRequestDuration measures wiki API latency distribution
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "api_request_duration_seconds",
		Help:      "MediaWiki API request latency by action",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"action"})

	// RevisionsImported counts revisions materialized as commits
	RevisionsImported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "revisions_imported_total",
		Help:      "Wiki revisions emitted as commits during import",
	})

	// EditsTotal counts push-side edit operations by kind and status
	EditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "edits_total",
		Help:      "Wiki edit operations by kind and status",
	}, []string{"operation", "status"})

	// EditDuration measures edit latency
	EditDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "edit_duration_seconds",
		Help:      "Wiki edit latency distribution",
		Buckets:   prometheus.DefBuckets,
	})

	// PushConflicts counts pushes aborted by an edit conflict
	PushConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "push_conflicts_total",
		Help:      "Pushes aborted because the wiki reported an edit conflict",
	})

	// AuthFailures counts login or token failures
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "auth_failures_total",
		Help:      "Authentication failures against the wiki",
	})
)

// RecordAPIRequest records one wiki API call with its duration and status.
func RecordAPIRequest(action string, duration float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	if action == "" {
		action = "unknown"
	}
	APIRequestsTotal.WithLabelValues(action, status).Inc()
	APIRequestDuration.WithLabelValues(action).Observe(duration)
}

// RecordEdit records one push-side edit operation.
func RecordEdit(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	EditsTotal.WithLabelValues(operation, status).Inc()
}

// Summary renders the session's counters as one compact line for logging
// at shutdown. Histograms are skipped; zero-valued counters are omitted.
func Summary() string {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return ""
	}

	var parts []string
	for _, fam := range families {
		if !strings.HasPrefix(fam.GetName(), Namespace+"_") {
			continue
		}
		name := strings.TrimPrefix(fam.GetName(), Namespace+"_")
		var total float64
		for _, m := range fam.GetMetric() {
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
		}
		if total > 0 {
			parts = append(parts, fmt.Sprintf("%s=%g", name, total))
		}
	}

	sort.Strings(parts)
	return strings.Join(parts, " ")
}
