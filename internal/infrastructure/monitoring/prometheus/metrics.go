package prometheus

import (
	"strconv"
	"time"

	pkgerrors "github.com/turtacn/charge-repository/pkg/errors"
)

// RepoMetrics holds every metric recorded by the charge repository tools.
// A nil *RepoMetrics is valid and records nothing, so components can take one
// as an optional dependency.
type RepoMetrics struct {
	// Solver
	SolverExchangesTotal   CounterVec
	SolverExchangeDuration HistogramVec
	SolverRestartsTotal    CounterVec

	// Worker pool
	PoolTasksTotal    CounterVec
	PoolTaskDuration  HistogramVec
	PoolActiveWorkers GaugeVec

	// Corpus build
	BuildStageDuration  HistogramVec
	BuildMoleculesTotal CounterVec
	RepositoryBuckets   GaugeVec
	RepositoryCharges   GaugeVec

	// Fingerprint cache
	CacheHitsTotal   CounterVec
	CacheMissesTotal CounterVec

	// Archive
	ArchiveBytes CounterVec

	ErrorsTotal CounterVec
}

// Buckets used by the repository histograms.
var (
	SolverDurationBuckets = []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1}
	StageDurationBuckets  = []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900, 3600}
)

// NewRepoMetrics registers all metrics on collector.
func NewRepoMetrics(collector MetricsCollector) *RepoMetrics {
	m := &RepoMetrics{}

	m.SolverExchangesTotal = collector.RegisterCounter("solver_exchanges_total", "Requests sent to the canonical labelling solver", "status")
	m.SolverExchangeDuration = collector.RegisterHistogram("solver_exchange_duration_seconds", "Solver round trip time", SolverDurationBuckets)
	m.SolverRestartsTotal = collector.RegisterCounter("solver_starts_total", "Solver processes spawned", "reason")

	m.PoolTasksTotal = collector.RegisterCounter("pool_tasks_total", "Worker pool tasks", "stage", "status")
	m.PoolTaskDuration = collector.RegisterHistogram("pool_task_duration_seconds", "Worker pool task duration", nil, "stage")
	m.PoolActiveWorkers = collector.RegisterGauge("pool_active_workers", "Workers holding an open solver", "pool")

	m.BuildStageDuration = collector.RegisterHistogram("build_stage_duration_seconds", "Corpus build stage duration", StageDurationBuckets, "stage")
	m.BuildMoleculesTotal = collector.RegisterCounter("build_molecules_total", "Molecules read by corpus builds", "status")
	m.RepositoryBuckets = collector.RegisterGauge("repository_buckets", "Fingerprint buckets per typing and shell", "typing", "shell")
	m.RepositoryCharges = collector.RegisterGauge("repository_charges", "Charge observations per typing and shell", "typing", "shell")

	m.CacheHitsTotal = collector.RegisterCounter("cache_hits_total", "Fingerprint cache hits", "cache")
	m.CacheMissesTotal = collector.RegisterCounter("cache_misses_total", "Fingerprint cache misses", "cache")

	m.ArchiveBytes = collector.RegisterCounter("archive_bytes_total", "Archive bytes moved", "direction")

	m.ErrorsTotal = collector.RegisterCounter("errors_total", "Errors by component and code", "component", "code")
	return m
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordExchange records one solver round trip.
func (m *RepoMetrics) RecordExchange(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SolverExchangesTotal.WithLabelValues(statusOf(err)).Inc()
	m.SolverExchangeDuration.WithLabelValues().Observe(d.Seconds())
	if err != nil {
		m.RecordError("solver", err)
	}
}

// RecordSolverStart counts a solver spawn; reason is "initial" or "restart".
func (m *RepoMetrics) RecordSolverStart(reason string) {
	if m == nil {
		return
	}
	m.SolverRestartsTotal.WithLabelValues(reason).Inc()
}

// RecordTask records one worker pool task.
func (m *RepoMetrics) RecordTask(stage string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PoolTasksTotal.WithLabelValues(stage, statusOf(err)).Inc()
	m.PoolTaskDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetActiveWorkers sets the number of live workers of a pool.
func (m *RepoMetrics) SetActiveWorkers(pool string, n int) {
	if m == nil {
		return
	}
	m.PoolActiveWorkers.WithLabelValues(pool).Set(float64(n))
}

// RecordStage records the duration of a corpus build stage.
func (m *RepoMetrics) RecordStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.BuildStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordMolecule counts one molecule read attempt.
func (m *RepoMetrics) RecordMolecule(err error) {
	if m == nil {
		return
	}
	m.BuildMoleculesTotal.WithLabelValues(statusOf(err)).Inc()
}

// SetRepositorySize publishes bucket and charge counts for one shell.
func (m *RepoMetrics) SetRepositorySize(typing string, shell, buckets, charges int) {
	if m == nil {
		return
	}
	s := strconv.Itoa(shell)
	m.RepositoryBuckets.WithLabelValues(typing, s).Set(float64(buckets))
	m.RepositoryCharges.WithLabelValues(typing, s).Set(float64(charges))
}

// RecordCacheAccess counts a cache hit or miss.
func (m *RepoMetrics) RecordCacheAccess(cache string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cache).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

// RecordArchiveBytes counts archive bytes; direction is "read", "write",
// "push" or "pull".
func (m *RepoMetrics) RecordArchiveBytes(direction string, n int64) {
	if m == nil {
		return
	}
	m.ArchiveBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordError counts err under its AppError code.
func (m *RepoMetrics) RecordError(component string, err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component, pkgerrors.GetCode(err).String()).Inc()
}
