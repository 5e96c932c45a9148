package services

import "github.com/prometheus/client_golang/prometheus"

var (
	jobsSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loader_jobs_submitted_total",
		Help: "Accepted search jobs.",
	})
	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "loader_jobs_finished_total",
		Help: "Jobs that reached a terminal state, by status.",
	}, []string{"status"})
	jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "loader_jobs_running",
		Help: "Jobs currently executing.",
	})
	recordsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loader_records_fetched_total",
		Help: "Records fetched and assembled into articles.",
	})
	recordsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loader_records_skipped_total",
		Help: "Records missing from a batch or rejected during assembly.",
	})
	jobsEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "loader_jobs_evicted_total",
		Help: "Finished jobs removed by the retention sweep.",
	})
)

func init() {
	prometheus.MustRegister(jobsSubmitted, jobsFinished, jobsRunning, recordsFetched, recordsSkipped, jobsEvicted)
}
