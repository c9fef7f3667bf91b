package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ieap", Name: "sync_runs_total", Help: "SIS sync runs by type and final status",
	}, []string{"sync_type", "status"})
	SyncRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ieap", Name: "sync_records_total", Help: "Records handled by SIS syncs",
	}, []string{"sync_type", "outcome"})
	SyncDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ieap", Name: "sync_duration_seconds", Help: "SIS sync run duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"sync_type"})
	StructuresCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ieap", Name: "structures_created_total", Help: "Composite structures built",
	})
	GradesImported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ieap", Name: "grades_imported_total", Help: "Grades written from spreadsheet imports",
	})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ieap", Name: "http_request_duration_seconds", Help: "API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	prometheus.MustRegister(SyncRuns, SyncRecords, SyncDuration, StructuresCreated, GradesImported, HTTPDuration)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveSync(syncType, status string, success, failed int, d time.Duration) {
	SyncRuns.WithLabelValues(syncType, status).Inc()
	SyncRecords.WithLabelValues(syncType, "success").Add(float64(success))
	SyncRecords.WithLabelValues(syncType, "failed").Add(float64(failed))
	SyncDuration.WithLabelValues(syncType).Observe(d.Seconds())
}
