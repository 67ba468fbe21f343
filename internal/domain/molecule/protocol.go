package molecule

import (
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/charge-repository/pkg/errors"
)

// Color is the solver-visible label of an atom: whether it is the core of a
// neighborhood and its atom type.
type Color struct {
	IsCore   bool
	AtomType string
}

// Less orders colors by (IsCore, AtomType) with false before true.
func (c Color) Less(o Color) bool {
	if c.IsCore != o.IsCore {
		return !c.IsCore
	}
	return c.AtomType < o.AtomType
}

// colorsOf returns the color of every atom of g in graph order.  core may be
// nil when no atom is distinguished.
func colorsOf(g *Graph, core *AtomID) []Color {
	colors := make([]Color, g.Len())
	for i, a := range g.Atoms() {
		colors[i] = Color{IsCore: core != nil && a.ID == *core, AtomType: a.Type}
	}
	return colors
}

// partition groups positions by color.  Cells appear in ascending color
// order and positions ascend within a cell.
func partition(colors []Color) [][]int {
	idx := make([]int, len(colors))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return colors[idx[a]].Less(colors[idx[b]]) })

	var cells [][]int
	for k, i := range idx {
		if k == 0 || colors[idx[k-1]] != colors[i] {
			cells = append(cells, nil)
		}
		cells[len(cells)-1] = append(cells[len(cells)-1], i)
	}
	return cells
}

// EncodeRequest renders the dreadnaut command line that canonically labels g
// under the given coloring and prints the labelling followed by END:
//
//	 n=3 g 0:1;1:2. f=[0,2|1] cxb"END\n"->>
func EncodeRequest(g *Graph, colors []Color) string {
	var sb strings.Builder
	sb.WriteString(" n=")
	sb.WriteString(strconv.Itoa(g.Len()))
	sb.WriteString(" g ")
	for k, e := range g.Edges() {
		if k > 0 {
			sb.WriteByte(';')
		}
		sb.WriteString(strconv.Itoa(e[0]))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(e[1]))
	}
	sb.WriteString(". f=[")
	for k, cell := range partition(colors) {
		if k > 0 {
			sb.WriteByte('|')
		}
		for m, i := range cell {
			if m > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Itoa(i))
		}
	}
	sb.WriteString(`] cxb"END\n"->>` + "\n")
	return sb.String()
}

// Labelling is the parsed solver answer: Order[i] is the input position placed
// at canonical position i, and Adjacency[k] lists the canonical neighbors of
// canonical node Nodes[k].
type Labelling struct {
	Order     []int
	Nodes     []int
	Adjacency [][]int
}

// ParseResponse decodes dreadnaut output for an n-atom request.  Everything up
// to the last "seconds" token is statistics and is skipped.  The canonical
// order follows, possibly wrapped over several lines, then one
// "<i> : <neighbors>;" entry per node, then a final END line.
func ParseResponse(out string, n int) (*Labelling, error) {
	cut := strings.LastIndex(out, "seconds")
	if cut < 0 {
		return nil, errors.Protocol("solver output has no statistics line").WithDetail(snippet(out))
	}
	lines := strings.Split(strings.TrimSpace(out[cut+len("seconds"):]), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[len(lines)-1]) != "END" {
		return nil, errors.Protocol("solver output does not end with END").WithDetail(snippet(out))
	}
	lines = lines[:len(lines)-1]

	lab := &Labelling{}
	i := 0
	for ; i < len(lines) && !strings.Contains(lines[i], ":"); i++ {
		ints, err := parseInts(lines[i])
		if err != nil {
			return nil, err
		}
		lab.Order = append(lab.Order, ints...)
	}
	if err := checkPermutation(lab.Order, n); err != nil {
		return nil, err
	}

	// Adjacency entries may wrap, so join the remaining lines and split on
	// the terminating semicolons.
	entries := strings.Split(strings.Join(lines[i:], " "), ";")
	if tail := strings.TrimSpace(entries[len(entries)-1]); tail != "" {
		return nil, errors.Protocol("unterminated adjacency entry").WithDetail(snippet(tail))
	}
	entries = entries[:len(entries)-1]
	if len(entries) != n {
		return nil, errors.Protocol("adjacency entry count mismatch").
			WithDetailf("want=%d got=%d", n, len(entries))
	}

	seen := make([]bool, n)
	for _, entry := range entries {
		head, tail, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, errors.Protocol("adjacency entry without colon").WithDetail(snippet(entry))
		}
		node, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil || node < 0 || node >= n {
			return nil, errors.Protocol("bad adjacency node").WithDetail(snippet(entry))
		}
		if seen[node] {
			return nil, errors.Protocol("duplicate adjacency node").WithDetail(snippet(entry))
		}
		seen[node] = true
		nbrs, err := parseInts(tail)
		if err != nil {
			return nil, err
		}
		for _, v := range nbrs {
			if v < 0 || v >= n {
				return nil, errors.Protocol("neighbor out of range").WithDetail(snippet(entry))
			}
		}
		lab.Nodes = append(lab.Nodes, node)
		lab.Adjacency = append(lab.Adjacency, nbrs)
	}
	return lab, nil
}

// Edges flattens the adjacency lists into sorted directed pairs.  Each bond
// appears once in each direction.
func (l *Labelling) Edges() [][2]int {
	var edges [][2]int
	for k, node := range l.Nodes {
		for _, v := range l.Adjacency[k] {
			edges = append(edges, [2]int{node, v})
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

// CanonicalColors returns colors permuted into canonical order.
func (l *Labelling) CanonicalColors(colors []Color) []Color {
	out := make([]Color, len(l.Order))
	for i, pos := range l.Order {
		out[i] = colors[pos]
	}
	return out
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Protocol("non-integer token in solver output").
				WithDetail(snippet(s)).WithCause(err)
		}
		out = append(out, v)
	}
	return out, nil
}

func checkPermutation(order []int, n int) error {
	if len(order) != n {
		return errors.Protocol("canonical order length mismatch").
			WithDetailf("want=%d got=%d", n, len(order))
	}
	seen := make([]bool, n)
	for _, v := range order {
		if v < 0 || v >= n || seen[v] {
			return errors.Protocol("canonical order is not a permutation").
				WithDetailf("index=%d", v)
		}
		seen[v] = true
	}
	return nil
}

func snippet(s string) string {
	const limit = 120
	if len(s) > limit {
		return strconv.Quote(s[:limit]) + "..."
	}
	return strconv.Quote(s)
}
