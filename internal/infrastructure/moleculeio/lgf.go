package moleculeio

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// LGF decodes LEMON graph format files.  The @nodes section must have a
// header naming at least the label and atom_type columns; partial_charge is
// optional.  The first two columns of each @edges row are the bonded labels.
// Other sections are ignored.
type LGF struct{}

// Extension implements Decoder.
func (LGF) Extension() string { return ".lgf" }

// Decode implements Decoder.
func (LGF) Decode(r io.Reader) (*molecule.Graph, error) {
	g := molecule.NewGraph()
	sc := bufio.NewScanner(r)

	section := ""
	var header []string
	col := map[string]int{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "@") {
			section = strings.Fields(line)[0]
			header = nil
			continue
		}

		switch section {
		case "@nodes":
			if header == nil {
				header = strings.Fields(line)
				col = make(map[string]int, len(header))
				for i, name := range header {
					col[name] = i
				}
				for _, required := range []string{"label", "atom_type"} {
					if _, ok := col[required]; !ok {
						return nil, malformed(lineNo, "node header lacks column "+required)
					}
				}
				continue
			}
			if err := addLGFNode(g, strings.Fields(line), col, len(header)); err != nil {
				return nil, malformed(lineNo, err.Error())
			}
		case "@edges", "@arcs":
			// The header row only names extra attributes and may be blank
			// apart from tabs, which TrimSpace already dropped.
			if header == nil {
				header = strings.Fields(line)
				if !looksLikeEdge(header) {
					continue
				}
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return nil, malformed(lineNo, "edge row needs two endpoints")
			}
			a, errA := strconv.Atoi(fields[0])
			b, errB := strconv.Atoi(fields[1])
			if errA != nil || errB != nil {
				return nil, malformed(lineNo, "edge endpoints must be integer labels")
			}
			if err := g.AddBond(molecule.AtomID(a), molecule.AtomID(b)); err != nil {
				return nil, errors.Wrap(err, errors.CodeMalformedInput, "invalid bond").WithDetailf("line=%d", lineNo)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.New(errors.CodeMalformedInput, "read lgf").WithCause(err)
	}
	if g.Len() == 0 {
		return nil, errors.New(errors.CodeMalformedInput, "lgf file has no atoms")
	}
	return g, nil
}

// looksLikeEdge reports whether a row starts with two integer labels, which
// happens when the edge section has no header row.
func looksLikeEdge(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	_, errA := strconv.Atoi(fields[0])
	_, errB := strconv.Atoi(fields[1])
	return errA == nil && errB == nil
}

func addLGFNode(g *molecule.Graph, fields []string, col map[string]int, width int) error {
	if len(fields) != width {
		return errors.InvalidParam("node row has " + strconv.Itoa(len(fields)) + " columns, header has " + strconv.Itoa(width))
	}
	id, err := strconv.Atoi(fields[col["label"]])
	if err != nil {
		return errors.InvalidParam("node label is not an integer")
	}
	var charge *float64
	if i, ok := col["partial_charge"]; ok {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil || !finite(v) {
			return errors.InvalidParam("partial_charge is not a finite number")
		}
		charge = &v
	}
	return g.AddAtom(molecule.AtomID(id), fields[col["atom_type"]], charge)
}

func malformed(line int, msg string) error {
	return errors.New(errors.CodeMalformedInput, msg).WithDetailf("line=%d", line)
}
