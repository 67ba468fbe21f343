package molecule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/pkg/errors"
)

func f64(v float64) *float64 { return &v }

// chain builds 10-20-30-40-50 with types A..E.
func chain(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	for i, typ := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, g.AddAtom(AtomID((i+1)*10), typ, f64(float64(i))))
	}
	for i := 1; i < 5; i++ {
		require.NoError(t, g.AddBond(AtomID(i*10), AtomID((i+1)*10)))
	}
	return g
}

func TestGraph_AddAtomAndBond(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddAtom(1, "C", nil))
	require.NoError(t, g.AddAtom(2, "O", nil))

	err := g.AddAtom(1, "N", nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	require.NoError(t, g.AddBond(1, 2))
	require.NoError(t, g.AddBond(2, 1))
	assert.Equal(t, 1, g.BondCount())

	assert.True(t, errors.IsCode(g.AddBond(1, 3), errors.CodeInvalidParam))
	assert.True(t, errors.IsCode(g.AddBond(1, 1), errors.CodeInvalidParam))
	assert.Equal(t, "Graph(atoms=2, bonds=1)", g.String())
}

func TestGraph_Edges(t *testing.T) {
	g := chain(t)
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}}, g.Edges())
}

func TestGraph_Neighborhood(t *testing.T) {
	g := chain(t)

	tests := []struct {
		name  string
		atom  AtomID
		shell int
		want  []AtomID
		bonds int
	}{
		{"shell zero", 30, 0, []AtomID{30}, 0},
		{"shell one", 30, 1, []AtomID{20, 30, 40}, 2},
		{"shell two from end", 50, 2, []AtomID{30, 40, 50}, 2},
		{"beyond diameter", 10, 9, []AtomID{10, 20, 30, 40, 50}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frag, err := g.Neighborhood(tt.atom, tt.shell)
			require.NoError(t, err)
			var ids []AtomID
			for _, a := range frag.Atoms() {
				ids = append(ids, a.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, tt.bonds, frag.BondCount())
		})
	}
}

func TestGraph_NeighborhoodKeepsRingBonds(t *testing.T) {
	g := NewGraph()
	for i := 1; i <= 3; i++ {
		require.NoError(t, g.AddAtom(AtomID(i), "C", nil))
	}
	require.NoError(t, g.AddBond(1, 2))
	require.NoError(t, g.AddBond(2, 3))
	require.NoError(t, g.AddBond(3, 1))

	frag, err := g.Neighborhood(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, frag.BondCount())
}

func TestGraph_NeighborhoodErrors(t *testing.T) {
	g := chain(t)
	_, err := g.Neighborhood(99, 1)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
	_, err = g.Neighborhood(10, -1)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))
}

func TestGraph_CloneIsDeep(t *testing.T) {
	g := chain(t)
	c := g.Clone()
	*c.atoms[0].Charge = 42
	require.NoError(t, c.AddBond(10, 50))

	assert.Equal(t, 0.0, *g.atoms[0].Charge)
	assert.Equal(t, 4, g.BondCount())
	assert.Equal(t, 5, c.BondCount())
}

func TestGraph_Charges(t *testing.T) {
	g := chain(t)
	charges, err := g.Charges()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, charges)

	require.NoError(t, g.AddAtom(60, "F", nil))
	_, err = g.Charges()
	assert.True(t, errors.IsCode(err, errors.CodeMissingAttribute))
}
