package moleculeio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

const waterYAML = `atoms:
  - {id: 1, type: OW, charge: -0.82}
  - {id: 2, type: H, charge: 0.41}
  - {id: 3, type: H, charge: 0.41}
bonds:
  - [1, 2]
  - [1, 3]
`

func TestYAML_Decode(t *testing.T) {
	g, err := YAML{}.Decode(strings.NewReader(waterYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.BondCount())

	charges, err := g.Charges()
	require.NoError(t, err)
	assert.Equal(t, []float64{-0.82, 0.41, 0.41}, charges)
}

func TestYAML_MissingChargeIsNil(t *testing.T) {
	g, err := YAML{}.Decode(strings.NewReader("atoms:\n  - {id: 7, type: C}\n"))
	require.NoError(t, err)
	a, ok := g.Atom(7)
	require.True(t, ok)
	assert.Nil(t, a.Charge)

	_, err = g.Charges()
	assert.True(t, errors.IsCode(err, errors.CodeMissingAttribute))
}

func TestYAML_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not yaml", "atoms: [\n"},
		{"unknown key", "atoms:\n  - {id: 1, type: C, mass: 12}\n"},
		{"no atoms", "bonds: []\n"},
		{"untyped atom", "atoms:\n  - {id: 1}\n"},
		{"duplicate id", "atoms:\n  - {id: 1, type: C}\n  - {id: 1, type: H}\n"},
		{"three-atom bond", "atoms:\n  - {id: 1, type: C}\n  - {id: 2, type: C}\nbonds:\n  - [1, 2, 3]\n"},
		{"dangling bond", "atoms:\n  - {id: 1, type: C}\nbonds:\n  - [1, 9]\n"},
		{"nan charge", "atoms:\n  - {id: 1, type: C, charge: .nan}\n"},
		{"infinite charge", "atoms:\n  - {id: 1, type: C, charge: -.inf}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := YAML{}.Decode(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeMalformedInput), "got %v", err)
		})
	}
}

func TestYAML_EncodeDecode(t *testing.T) {
	g, err := YAML{}.Decode(strings.NewReader(waterYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, YAML{}.Encode(&buf, g))

	back, err := YAML{}.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, g.Atoms(), back.Atoms())
	assert.Equal(t, g.Edges(), back.Edges())
}

func TestYAML_EncodeKeepsAtomIDs(t *testing.T) {
	g := molecule.NewGraph()
	require.NoError(t, g.AddAtom(40, "C", nil))
	require.NoError(t, g.AddAtom(12, "O", nil))
	require.NoError(t, g.AddBond(40, 12))

	var buf bytes.Buffer
	require.NoError(t, YAML{}.Encode(&buf, g))
	assert.Contains(t, buf.String(), "id: 40")
	assert.NotContains(t, buf.String(), "charge")

	back, err := YAML{}.Decode(&buf)
	require.NoError(t, err)
	_, ok := back.Atom(40)
	assert.True(t, ok)
}
