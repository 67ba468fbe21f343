package moleculeio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/pkg/errors"
)

const ethanolLGF = `@nodes
label	atom_type	partial_charge	
1	CH3	0.0	
2	CH2	0.15	
3	OA	-0.548	
4	H	0.398	
@edges
		label
1	2	0
2	3	1
3	4	2
@attributes
caption	ethanol
`

func TestLGF_DecodeEthanol(t *testing.T) {
	g, err := LGF{}.Decode(strings.NewReader(ethanolLGF))
	require.NoError(t, err)

	assert.Equal(t, 4, g.Len())
	assert.Equal(t, 3, g.BondCount())

	oxygen, ok := g.Atom(3)
	require.True(t, ok)
	assert.Equal(t, "OA", oxygen.Type)
	require.NotNil(t, oxygen.Charge)
	assert.InDelta(t, -0.548, *oxygen.Charge, 1e-12)

	charges, err := g.Charges()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.0, 0.15, -0.548, 0.398}, charges)
}

func TestLGF_HeaderlessEdges(t *testing.T) {
	in := "@nodes\nlabel atom_type\n10 OW\n11 H\n12 H\n@edges\n10 11\n10 12\n"
	g, err := LGF{}.Decode(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, g.BondCount())

	a, ok := g.Atom(10)
	require.True(t, ok)
	assert.Nil(t, a.Charge)
}

func TestLGF_ColumnOrderFollowsHeader(t *testing.T) {
	in := "@nodes\npartial_charge atom_type label\n-0.82 OW 1\n0.41 H 2\n@edges\nlabel\n1 2 0\n"
	g, err := LGF{}.Decode(strings.NewReader(in))
	require.NoError(t, err)

	a, ok := g.Atom(1)
	require.True(t, ok)
	assert.Equal(t, "OW", a.Type)
	assert.InDelta(t, -0.82, *a.Charge, 1e-12)
	assert.Equal(t, [][2]int{{0, 1}}, g.Edges())
}

func TestLGF_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no atom_type column", "@nodes\nlabel partial_charge\n1 0.5\n"},
		{"short node row", "@nodes\nlabel atom_type partial_charge\n1 C\n"},
		{"non-integer label", "@nodes\nlabel atom_type\nx C\n"},
		{"bad charge", "@nodes\nlabel atom_type partial_charge\n1 C abc\n"},
		{"duplicate label", "@nodes\nlabel atom_type\n1 C\n1 H\n"},
		{"unknown endpoint", "@nodes\nlabel atom_type\n1 C\n@edges\nlabel\n1 2 0\n"},
		{"single endpoint", "@nodes\nlabel atom_type\n1 C\n2 C\n@edges\nlabel\n1\n"},
		{"nan charge", "@nodes\nlabel atom_type partial_charge\n1 C nan\n"},
		{"infinite charge", "@nodes\nlabel atom_type partial_charge\n1 C +Inf\n"},
		{"non-integer endpoint", "@nodes\nlabel atom_type\n1 C\n2 C\n@edges\nlabel\n1 b 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LGF{}.Decode(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeMalformedInput), "got %v", err)
		})
	}
}

func TestLGF_Extension(t *testing.T) {
	var d Decoder = LGF{}
	assert.Equal(t, ".lgf", d.Extension())
}
