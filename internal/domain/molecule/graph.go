// Package molecule models molecules as colored graphs and computes canonical,
// relabeling-invariant fingerprints of whole molecules and of atom-centered
// neighborhoods.  Canonical labelling is delegated to an external solver
// reached through the Exchanger interface.
package molecule

import (
	"fmt"
	"sort"

	"github.com/turtacn/charge-repository/pkg/errors"
)

// AtomID identifies an atom within its molecule.  It is opaque: only equality
// matters, never its numeric value.
type AtomID int

// Atom is a graph node.
type Atom struct {
	ID   AtomID
	Type string
	// Charge is nil when the source file carried no partial charge.
	Charge *float64
}

// Graph is an undirected molecular graph.  Atom order is insertion order and
// is the positional index used in solver requests.
type Graph struct {
	atoms []Atom
	index map[AtomID]int
	adj   []map[int]struct{}
}

// Molecule pairs a graph with its corpus-wide molecule id.
type Molecule struct {
	ID    int
	Graph *Graph
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[AtomID]int)}
}

// AddAtom appends an atom.  Duplicate ids are rejected.
func (g *Graph) AddAtom(id AtomID, atomType string, charge *float64) error {
	if _, dup := g.index[id]; dup {
		return errors.InvalidParam("duplicate atom id").WithDetailf("atom=%d", id)
	}
	g.index[id] = len(g.atoms)
	g.atoms = append(g.atoms, Atom{ID: id, Type: atomType, Charge: charge})
	g.adj = append(g.adj, make(map[int]struct{}))
	return nil
}

// AddBond connects two existing atoms.  Adding an existing bond is a no-op.
func (g *Graph) AddBond(a, b AtomID) error {
	ia, ok := g.index[a]
	if !ok {
		return errors.InvalidParam("bond references unknown atom").WithDetailf("atom=%d", a)
	}
	ib, ok := g.index[b]
	if !ok {
		return errors.InvalidParam("bond references unknown atom").WithDetailf("atom=%d", b)
	}
	if ia == ib {
		return errors.InvalidParam("self bond").WithDetailf("atom=%d", a)
	}
	g.adj[ia][ib] = struct{}{}
	g.adj[ib][ia] = struct{}{}
	return nil
}

// Len returns the number of atoms.
func (g *Graph) Len() int { return len(g.atoms) }

// Atoms returns the atoms in graph order.  The slice must not be modified.
func (g *Graph) Atoms() []Atom { return g.atoms }

// Atom looks up an atom by id.
func (g *Graph) Atom(id AtomID) (Atom, bool) {
	i, ok := g.index[id]
	if !ok {
		return Atom{}, false
	}
	return g.atoms[i], true
}

// Position returns the positional index of id.
func (g *Graph) Position(id AtomID) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// neighbors returns the sorted positional neighbors of position i.
func (g *Graph) neighbors(i int) []int {
	out := make([]int, 0, len(g.adj[i]))
	for j := range g.adj[i] {
		out = append(out, j)
	}
	sort.Ints(out)
	return out
}

// Edges returns every bond once as a positional pair (u, v) with u < v, sorted
// ascending.
func (g *Graph) Edges() [][2]int {
	var edges [][2]int
	for u := range g.adj {
		for v := range g.adj[u] {
			if u < v {
				edges = append(edges, [2]int{u, v})
			}
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// BondCount returns the number of bonds.
func (g *Graph) BondCount() int {
	n := 0
	for _, a := range g.adj {
		n += len(a)
	}
	return n / 2
}

// Neighborhood extracts the fragment around atom: every atom within shell
// bonds of it, and every bond among those atoms.  Atom order follows the
// parent graph.  A shell of zero yields the atom alone.
func (g *Graph) Neighborhood(atom AtomID, shell int) (*Graph, error) {
	start, ok := g.index[atom]
	if !ok {
		return nil, errors.InvalidParam("atom not in graph").WithDetailf("atom=%d", atom)
	}
	if shell < 0 {
		return nil, errors.InvalidParam("negative shell").WithDetailf("shell=%d", shell)
	}

	dist := map[int]int{start: 0}
	frontier := []int{start}
	for depth := 1; depth <= shell && len(frontier) > 0; depth++ {
		var next []int
		for _, u := range frontier {
			for v := range g.adj[u] {
				if _, seen := dist[v]; !seen {
					dist[v] = depth
					next = append(next, v)
				}
			}
		}
		frontier = next
	}

	keep := make([]int, 0, len(dist))
	for i := range g.atoms {
		if _, in := dist[i]; in {
			keep = append(keep, i)
		}
	}
	return g.induced(keep), nil
}

// induced builds the subgraph over the given ascending positions.
func (g *Graph) induced(positions []int) *Graph {
	sub := NewGraph()
	remap := make(map[int]int, len(positions))
	for _, p := range positions {
		remap[p] = len(sub.atoms)
		sub.index[g.atoms[p].ID] = len(sub.atoms)
		sub.atoms = append(sub.atoms, g.atoms[p])
		sub.adj = append(sub.adj, make(map[int]struct{}))
	}
	for _, p := range positions {
		for q := range g.adj[p] {
			if nq, in := remap[q]; in {
				sub.adj[remap[p]][nq] = struct{}{}
			}
		}
	}
	return sub
}

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	positions := make([]int, len(g.atoms))
	for i := range positions {
		positions[i] = i
	}
	c := g.induced(positions)
	for i, a := range c.atoms {
		if a.Charge != nil {
			v := *a.Charge
			c.atoms[i].Charge = &v
		}
	}
	return c
}

// Retype returns a copy of g with every atom type passed through fn.
func (g *Graph) Retype(fn func(string) (string, error)) (*Graph, error) {
	c := g.Clone()
	for i := range c.atoms {
		t, err := fn(c.atoms[i].Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeUnknown, "retype atom").
				WithDetailf("atom=%d", c.atoms[i].ID)
		}
		c.atoms[i].Type = t
	}
	return c, nil
}

// Charges returns the partial charge of every atom in graph order, failing on
// the first atom without one.
func (g *Graph) Charges() ([]float64, error) {
	out := make([]float64, len(g.atoms))
	for i, a := range g.atoms {
		if a.Charge == nil {
			return nil, errors.MissingAttribute("atom has no partial charge").
				WithDetailf("atom=%d", a.ID)
		}
		out[i] = *a.Charge
	}
	return out, nil
}

func (g *Graph) String() string {
	return fmt.Sprintf("Graph(atoms=%d, bonds=%d)", g.Len(), g.BondCount())
}
