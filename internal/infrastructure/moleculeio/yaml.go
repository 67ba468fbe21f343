package moleculeio

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// YAML decodes documents of the form
//
//	atoms:
//	  - {id: 1, type: CH3, charge: 0.0}
//	bonds:
//	  - [1, 2]
//
// An atom without a charge key has no partial charge.
type YAML struct{}

type yamlMolecule struct {
	Atoms []yamlAtom `yaml:"atoms"`
	Bonds [][]int    `yaml:"bonds"`
}

type yamlAtom struct {
	ID     int      `yaml:"id"`
	Type   string   `yaml:"type"`
	Charge *float64 `yaml:"charge,omitempty"`
}

// Extension implements Decoder.
func (YAML) Extension() string { return ".yaml" }

// Decode implements Decoder.
func (YAML) Decode(r io.Reader) (*molecule.Graph, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var doc yamlMolecule
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.New(errors.CodeMalformedInput, "decode yaml molecule").WithCause(err)
	}
	if len(doc.Atoms) == 0 {
		return nil, errors.New(errors.CodeMalformedInput, "yaml molecule has no atoms")
	}

	g := molecule.NewGraph()
	for i, a := range doc.Atoms {
		if a.Type == "" {
			return nil, errors.New(errors.CodeMalformedInput, "atom without type").WithDetailf("index=%d", i)
		}
		if a.Charge != nil && !finite(*a.Charge) {
			return nil, errors.New(errors.CodeMalformedInput, "charge is not a finite number").WithDetailf("index=%d", i)
		}
		if err := g.AddAtom(molecule.AtomID(a.ID), a.Type, a.Charge); err != nil {
			return nil, errors.Wrap(err, errors.CodeMalformedInput, "invalid atom").WithDetailf("index=%d", i)
		}
	}
	for i, b := range doc.Bonds {
		if len(b) != 2 {
			return nil, errors.New(errors.CodeMalformedInput, "bond must list two atoms").WithDetailf("index=%d", i)
		}
		if err := g.AddBond(molecule.AtomID(b[0]), molecule.AtomID(b[1])); err != nil {
			return nil, errors.Wrap(err, errors.CodeMalformedInput, "invalid bond").WithDetailf("index=%d", i)
		}
	}
	return g, nil
}

// Encode writes g in the form Decode reads.
func (YAML) Encode(w io.Writer, g *molecule.Graph) error {
	doc := yamlMolecule{}
	for _, a := range g.Atoms() {
		doc.Atoms = append(doc.Atoms, yamlAtom{ID: int(a.ID), Type: a.Type, Charge: a.Charge})
	}
	ids := g.Atoms()
	for _, e := range g.Edges() {
		doc.Bonds = append(doc.Bonds, []int{int(ids[e[0]].ID), int(ids[e[1]].ID)})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.New(errors.CodeSerialization, "encode yaml molecule").WithCause(err)
	}
	return enc.Close()
}
