package testutil

import (
	"github.com/turtacn/charge-repository/internal/domain/molecule"
)

// AtomSpec describes one fixture atom.
type AtomSpec struct {
	ID     int
	Type   string
	Charge float64
}

// BuildGraph assembles a graph from atoms and bonds and panics on bad input.
func BuildGraph(atoms []AtomSpec, bonds [][2]int) *molecule.Graph {
	g := molecule.NewGraph()
	for _, a := range atoms {
		charge := a.Charge
		if err := g.AddAtom(molecule.AtomID(a.ID), a.Type, &charge); err != nil {
			panic(err)
		}
	}
	for _, b := range bonds {
		if err := g.AddBond(molecule.AtomID(b[0]), molecule.AtomID(b[1])); err != nil {
			panic(err)
		}
	}
	return g
}

// Methane is explicit-hydrogen methane: one CH0 carbon bonded to four HC
// hydrogens.  Atom 1 is the carbon.
func Methane(molID int, carbon, hydrogen float64) molecule.Molecule {
	return molecule.Molecule{ID: molID, Graph: BuildGraph(
		[]AtomSpec{
			{1, "CH0", carbon},
			{2, "HC", hydrogen},
			{3, "HC", hydrogen},
			{4, "HC", hydrogen},
			{5, "HC", hydrogen},
		},
		[][2]int{{1, 2}, {1, 3}, {1, 4}, {1, 5}},
	)}
}

// Ethanol is CH3-CH2-OA-H with united-atom carbons.
func Ethanol(molID int) molecule.Molecule {
	return molecule.Molecule{ID: molID, Graph: BuildGraph(
		[]AtomSpec{
			{1, "CH3", 0.0},
			{2, "CH2", 0.15},
			{3, "OA", -0.548},
			{4, "H", 0.398},
		},
		[][2]int{{1, 2}, {2, 3}, {3, 4}},
	)}
}

// Water is OW with two H atoms.
func Water(molID int) molecule.Molecule {
	return molecule.Molecule{ID: molID, Graph: BuildGraph(
		[]AtomSpec{
			{1, "OW", -0.82},
			{2, "H", 0.41},
			{3, "H", 0.41},
		},
		[][2]int{{1, 2}, {1, 3}},
	)}
}

// MethanePermuted is Methane with the hydrogens listed first and unrelated
// atom ids, so only canonical labelling can tell the two are the same.
func MethanePermuted(molID int, carbon, hydrogen float64) molecule.Molecule {
	return molecule.Molecule{ID: molID, Graph: BuildGraph(
		[]AtomSpec{
			{31, "HC", hydrogen},
			{17, "HC", hydrogen},
			{8, "HC", hydrogen},
			{99, "CH0", carbon},
			{4, "HC", hydrogen},
		},
		[][2]int{{4, 99}, {99, 8}, {17, 99}, {99, 31}},
	)}
}
