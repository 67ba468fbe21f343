package corpus_test

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/internal/application/corpus"
	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/dreadnaut"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/testutil"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// memReader serves molecules from memory.
type memReader struct {
	mols map[int]molecule.Molecule
	err  error
}

func newMemReader(mols ...molecule.Molecule) *memReader {
	r := &memReader{mols: make(map[int]molecule.Molecule)}
	for _, m := range mols {
		r.mols[m.ID] = m
	}
	return r
}

func (r *memReader) ListIDs() ([]int, error) {
	ids := make([]int, 0, len(r.mols))
	for id := range r.mols {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (r *memReader) Read(molid int) (molecule.Molecule, error) {
	if r.err != nil {
		return molecule.Molecule{}, r.err
	}
	m, ok := r.mols[molid]
	if !ok {
		return molecule.Molecule{}, errors.NotFound("no such molecule")
	}
	return m, nil
}

// fakeCanonizers hands every worker a canonicalizer over the in-process
// solver and counts releases.
type fakeCanonizers struct {
	solver   *testutil.FakeDreadnaut
	created  atomic.Int32
	released atomic.Int32
	failAt   int
}

func newFakeCanonizers() *fakeCanonizers {
	return &fakeCanonizers{solver: testutil.NewFakeDreadnaut(), failAt: -1}
}

func (f *fakeCanonizers) factory(_ context.Context, worker int) (molecule.Canonizer, func() error, error) {
	if worker == f.failAt {
		return nil, nil, errors.New(errors.CodeSolverExec, "cannot start solver")
	}
	f.created.Add(1)
	return molecule.NewCanonicalizer(f.solver), func() error {
		f.released.Add(1)
		return nil
	}, nil
}

func buildConfig(shellMin, shellMax, workers int) corpus.BuildConfig {
	return corpus.BuildConfig{ShellMin: shellMin, ShellMax: shellMax, Workers: workers, ChunkSize: 1}
}

func TestBuild_TwoMethanes(t *testing.T) {
	canons := newFakeCanonizers()
	reader := newMemReader(
		testutil.Methane(1, 0.1, -0.025),
		testutil.MethanePermuted(2, 0.1, -0.025),
	)
	b := corpus.NewBuilder(buildConfig(1, 2, 2), reader, canons.factory, testutil.NewMockLogger(), nil)

	repo, err := b.Build(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	canon := molecule.NewCanonicalizer(testutil.NewFakeDreadnaut())
	carbon, err := canon.CanonizeNeighborhood(ctx, reader.mols[1].Graph, 1, 1)
	require.NoError(t, err)

	charges, ok := repo.Store(molecule.Native).Charges(1, carbon)
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.1}, charges)

	want := charge.IsoIndex{1: {1, 2}, 2: {1, 2}}
	assert.True(t, repo.IsoIndex(molecule.Native).Equal(want))
	assert.True(t, repo.IsoIndex(molecule.Element).Equal(want))
	assert.Equal(t, []int{1, 2}, repo.Store(molecule.Element).Shells())

	assert.Equal(t, int32(2), canons.created.Load())
	assert.Equal(t, int32(2), canons.released.Load())
}

func TestBuild_MatchesIncrementalAdds(t *testing.T) {
	mols := []molecule.Molecule{
		testutil.Methane(1, 0.1, -0.025),
		testutil.Ethanol(2),
		testutil.Water(3),
		testutil.MethanePermuted(4, 0.12, -0.03),
	}
	b := corpus.NewBuilder(buildConfig(1, 3, 3), newMemReader(mols...), newFakeCanonizers().factory, nil, nil)
	built, err := b.Build(context.Background())
	require.NoError(t, err)

	incremental, err := charge.New(1, 3, charge.WithCanonizer(molecule.NewCanonicalizer(testutil.NewFakeDreadnaut())))
	require.NoError(t, err)
	for _, m := range mols {
		require.NoError(t, incremental.Add(context.Background(), m))
	}

	for _, typ := range molecule.Typings {
		assert.True(t, built.Store(typ).Equal(incremental.Store(typ)), "typing %s", typ)
	}
	assert.Empty(t, incremental.IsoIndex(molecule.Native))
	assert.Equal(t, []int{1, 4}, built.Isomorphs(molecule.Native, 4))
	assert.Equal(t, []int{3}, built.Isomorphs(molecule.Native, 3))
}

func TestBuild_ShellZero(t *testing.T) {
	b := corpus.NewBuilder(buildConfig(0, 1, 1), newMemReader(testutil.Water(1), testutil.Ethanol(2)), newFakeCanonizers().factory, nil, nil)
	repo, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, repo.Store(molecule.Native).Shells())
	buckets, obs := repo.Store(molecule.Native).Len(0)
	// OW, H, CH3, CH2, OA; water and ethanol hydrogens share the H bucket.
	assert.Equal(t, 5, buckets)
	assert.Equal(t, 7, obs)

	buckets, _ = repo.Store(molecule.Element).Len(0)
	assert.Equal(t, 3, buckets)
}

func TestBuild_Traceable(t *testing.T) {
	cfg := buildConfig(1, 1, 2)
	cfg.Traceable = true
	b := corpus.NewBuilder(cfg, newMemReader(testutil.Water(7), testutil.Water(9)), newFakeCanonizers().factory, nil, nil)
	repo, err := b.Build(context.Background())
	require.NoError(t, err)
	require.True(t, repo.Traceable())

	canon := molecule.NewCanonicalizer(testutil.NewFakeDreadnaut())
	oxygen, err := canon.CanonizeNeighborhood(context.Background(), testutil.Water(7).Graph, 1, 1)
	require.NoError(t, err)
	obs, ok := repo.Store(molecule.Native).Observations(1, oxygen)
	require.True(t, ok)
	assert.Equal(t, []charge.Observation{{Charge: -0.82, MolID: 7}, {Charge: -0.82, MolID: 9}}, obs)

	view, err := charge.NewFilteredView(repo, 7)
	require.NoError(t, err)
	_, ok = view.Charges(molecule.Native, 1, oxygen)
	assert.False(t, ok)
}

func TestBuild_EmptyCorpus(t *testing.T) {
	b := corpus.NewBuilder(buildConfig(1, 2, 2), newMemReader(), newFakeCanonizers().factory, nil, nil)
	repo, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Empty(t, repo.Store(molecule.Native).Shells())
	assert.Empty(t, repo.IsoIndex(molecule.Element))
}

func TestBuild_Failures(t *testing.T) {
	noCharge := molecule.NewGraph()
	require.NoError(t, noCharge.AddAtom(1, "C", nil))

	tests := []struct {
		name   string
		reader *memReader
		code   errors.ErrorCode
	}{
		{"missing charge", newMemReader(testutil.Water(1), molecule.Molecule{ID: 2, Graph: noCharge}), errors.CodeMissingAttribute},
		{"unknown element", newMemReader(molecule.Molecule{ID: 1, Graph: testutil.BuildGraph(
			[]testutil.AtomSpec{{ID: 1, Type: "XX", Charge: 0}}, nil)}), errors.CodeUnknownAtomType},
		{"read failure", &memReader{mols: map[int]molecule.Molecule{1: testutil.Water(1)}, err: errors.New(errors.CodeMalformedInput, "bad file")}, errors.CodeMalformedInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canons := newFakeCanonizers()
			b := corpus.NewBuilder(buildConfig(1, 1, 2), tt.reader, canons.factory, nil, nil)
			repo, err := b.Build(context.Background())
			require.Error(t, err)
			assert.Nil(t, repo)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			assert.Equal(t, canons.created.Load(), canons.released.Load())
		})
	}
}

func TestBuild_WorkerStartFailureReleasesOthers(t *testing.T) {
	canons := newFakeCanonizers()
	canons.failAt = 2
	b := corpus.NewBuilder(buildConfig(1, 1, 4), newMemReader(testutil.Water(1)), canons.factory, nil, nil)

	_, err := b.Build(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeSolverExec), "got %v", err)
	assert.Equal(t, int32(2), canons.created.Load())
	assert.Equal(t, int32(2), canons.released.Load())
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := corpus.NewBuilder(buildConfig(1, 1, 1), newMemReader(testutil.Water(1)), newFakeCanonizers().factory, nil, nil)
	_, err := b.Build(ctx)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled), "got %v", err)
}

func TestBuild_InvalidShellRange(t *testing.T) {
	b := corpus.NewBuilder(buildConfig(3, 1, 1), newMemReader(), newFakeCanonizers().factory, nil, nil)
	_, err := b.Build(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestSolverCanonizers_BadExecutable(t *testing.T) {
	factory := corpus.SolverCanonizers(dreadnaut.Config{Executable: "/nonexistent/dreadnaut"}, nil, logging.NewNopLogger(), nil)
	b := corpus.NewBuilder(buildConfig(1, 1, 2), newMemReader(testutil.Water(1)), factory, nil, nil)
	_, err := b.Build(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeSolverExec), "got %v", err)
}

func TestBuild_LargeCorpusChunks(t *testing.T) {
	var mols []molecule.Molecule
	for i := 1; i <= 20; i++ {
		mols = append(mols, testutil.Methane(i, 0.1+float64(i)/1000, -0.025))
	}
	cfg := buildConfig(1, 1, 3)
	cfg.ChunkSize = 6
	b := corpus.NewBuilder(cfg, newMemReader(mols...), newFakeCanonizers().factory, nil, nil)
	repo, err := b.Build(context.Background())
	require.NoError(t, err)

	carbon, err := molecule.NewCanonicalizer(testutil.NewFakeDreadnaut()).
		CanonizeNeighborhood(context.Background(), mols[0].Graph, 1, 1)
	require.NoError(t, err)
	charges, ok := repo.Store(molecule.Native).Charges(1, carbon)
	require.True(t, ok)
	require.Len(t, charges, 20)
	assert.True(t, sort.Float64sAreSorted(charges), fmt.Sprint(charges))

	assert.Len(t, repo.Isomorphs(molecule.Native, 5), 20)
}
