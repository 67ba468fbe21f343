package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pkgerrors "github.com/turtacn/charge-repository/pkg/errors"
)

func newTestRepoMetrics(t *testing.T) (*RepoMetrics, MetricsCollector) {
	t.Helper()
	c := newTestCollector(t)
	m := NewRepoMetrics(c)
	require.NotNil(t, m)
	return m, c
}

func TestRepoMetrics_Solver(t *testing.T) {
	m, c := newTestRepoMetrics(t)

	m.RecordSolverStart("initial")
	m.RecordExchange(2*time.Millisecond, nil)
	m.RecordExchange(time.Millisecond, pkgerrors.New(pkgerrors.CodeSolverIO, "pipe closed"))

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_solver_starts_total{reason="initial"} 1`)
	assert.Contains(t, out, `test_unit_solver_exchanges_total{status="ok"} 1`)
	assert.Contains(t, out, `test_unit_solver_exchanges_total{status="error"} 1`)
	assert.Contains(t, out, `test_unit_solver_exchange_duration_seconds_count 2`)
	assert.Contains(t, out, `test_unit_errors_total{code="SOLVER_002",component="solver"} 1`)
}

func TestRepoMetrics_PoolAndBuild(t *testing.T) {
	m, c := newTestRepoMetrics(t)

	m.SetActiveWorkers("canonize", 3)
	m.RecordTask("shell_2", 10*time.Millisecond, nil)
	m.RecordTask("shell_2", 10*time.Millisecond, errors.New("boom"))
	m.RecordStage("read", time.Second)
	m.RecordMolecule(nil)
	m.SetRepositorySize("iacm", 2, 10, 42)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_pool_active_workers{pool="canonize"} 3`)
	assert.Contains(t, out, `test_unit_pool_tasks_total{stage="shell_2",status="error"} 1`)
	assert.Contains(t, out, `test_unit_build_stage_duration_seconds_count{stage="read"} 1`)
	assert.Contains(t, out, `test_unit_build_molecules_total{status="ok"} 1`)
	assert.Contains(t, out, `test_unit_repository_buckets{shell="2",typing="iacm"} 10`)
	assert.Contains(t, out, `test_unit_repository_charges{shell="2",typing="iacm"} 42`)
}

func TestRepoMetrics_CacheAndArchive(t *testing.T) {
	m, c := newTestRepoMetrics(t)

	m.RecordCacheAccess("redis", true)
	m.RecordCacheAccess("redis", false)
	m.RecordCacheAccess("redis", false)
	m.RecordArchiveBytes("write", 512)

	out := scrapeMetrics(t, c)
	assert.Contains(t, out, `test_unit_cache_hits_total{cache="redis"} 1`)
	assert.Contains(t, out, `test_unit_cache_misses_total{cache="redis"} 2`)
	assert.Contains(t, out, `test_unit_archive_bytes_total{direction="write"} 512`)
}

func TestRepoMetrics_NilIsNoop(t *testing.T) {
	var m *RepoMetrics
	assert.NotPanics(t, func() {
		m.RecordExchange(time.Millisecond, nil)
		m.RecordSolverStart("restart")
		m.RecordTask("x", time.Millisecond, nil)
		m.SetActiveWorkers("x", 1)
		m.RecordStage("x", time.Millisecond)
		m.RecordMolecule(nil)
		m.SetRepositorySize("elem", 1, 1, 1)
		m.RecordCacheAccess("redis", true)
		m.RecordArchiveBytes("read", 1)
		m.RecordError("x", errors.New("y"))
	})
}
