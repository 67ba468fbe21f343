package charge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/testutil"
	"github.com/turtacn/charge-repository/pkg/errors"
)

func TestNewFilteredView_RequiresTraceable(t *testing.T) {
	repo, _ := newRepo(t, 1, 1)
	_, err := charge.NewFilteredView(repo, 1)
	assert.True(t, errors.IsCode(err, errors.CodeNotTraceable))
}

func TestFilteredView_HidesMoleculeAndIsomorphs(t *testing.T) {
	ctx := context.Background()
	repo, canon := newRepo(t, 1, 1, charge.WithTraceable(true))
	m1 := testutil.Methane(1, 0.1, -0.025)
	m2 := testutil.MethanePermuted(2, 0.1, -0.025)
	m3 := testutil.Methane(3, 0.2, -0.05)
	for _, m := range []molecule.Molecule{m1, m2, m3} {
		require.NoError(t, repo.Add(ctx, m))
	}
	repo.Load(molecule.Native, repo.Store(molecule.Native), charge.NewIsoIndex([][]int{{1, 2}}))

	carbon, err := canon.CanonizeNeighborhood(ctx, m1.Graph, 1, 1)
	require.NoError(t, err)

	view, err := charge.NewFilteredView(repo, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, view.MolID())
	assert.True(t, view.Excluded(molecule.Native, 2))
	assert.False(t, view.Excluded(molecule.Element, 2))

	// Native: 1 and 2 are isomorphic, so only molecule 3 remains.
	got, ok := view.Charges(molecule.Native, 1, carbon)
	require.True(t, ok)
	assert.Equal(t, []float64{0.2}, got)

	// Element: no recorded group, so only molecule 1 is hidden.
	elemCarbon, err := canon.CanonizeNeighborhood(ctx, mustElement(t, m1.Graph), 1, 1)
	require.NoError(t, err)
	got, ok = view.Source(molecule.Element).Charges(1, elemCarbon)
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.2}, got)

	// The repository itself is unchanged.
	full, ok := repo.Store(molecule.Native).Charges(1, carbon)
	require.True(t, ok)
	assert.Equal(t, []float64{0.1, 0.1, 0.2}, full)
}

func TestFilteredView_EmptyAfterFilteringIsAbsent(t *testing.T) {
	ctx := context.Background()
	repo, canon := newRepo(t, 1, 1, charge.WithTraceable(true))
	water := testutil.Water(5)
	require.NoError(t, repo.Add(ctx, water))
	require.NoError(t, repo.Add(ctx, testutil.Ethanol(6)))

	oxygen, err := canon.CanonizeNeighborhood(ctx, water.Graph, 1, 1)
	require.NoError(t, err)

	view, err := charge.NewFilteredView(repo, 5)
	require.NoError(t, err)
	var src charge.ChargeSource = view.Source(molecule.Native)
	_, ok := src.Charges(1, oxygen)
	assert.False(t, ok)
	_, ok = src.Charges(4, oxygen)
	assert.False(t, ok)

	other, err := charge.NewFilteredView(repo, 6)
	require.NoError(t, err)
	got, ok := other.Charges(molecule.Native, 1, oxygen)
	require.True(t, ok)
	assert.Equal(t, []float64{-0.82}, got)
}

func mustElement(t *testing.T, g *molecule.Graph) *molecule.Graph {
	t.Helper()
	el, err := g.ForTyping(molecule.Element)
	require.NoError(t, err)
	return el
}
