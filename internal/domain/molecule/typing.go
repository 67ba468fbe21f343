package molecule

import (
	"fmt"

	"github.com/turtacn/charge-repository/pkg/errors"
)

// Typing selects the atom type vocabulary a repository side is keyed by.
type Typing int

const (
	// Native keeps the fine-grained (IACM) force-field atom types.
	Native Typing = iota
	// Element generalizes every atom type to its chemical element.
	Element
)

// Typings lists both typings in archive order.
var Typings = []Typing{Native, Element}

// String returns the archive key suffix of the typing.
func (t Typing) String() string {
	switch t {
	case Native:
		return "iacm"
	case Element:
		return "elem"
	default:
		return fmt.Sprintf("Typing(%d)", int(t))
	}
}

// MarshalText encodes the typing by name.
func (t Typing) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ParseTyping accepts "iacm"/"native" and "elem"/"element".
func ParseTyping(s string) (Typing, error) {
	switch s {
	case "iacm", "native":
		return Native, nil
	case "elem", "element":
		return Element, nil
	default:
		return 0, errors.InvalidParam("unknown typing").WithDetailf("typing=%q", s)
	}
}

// iacmElements maps IACM atom types (plus the solvent types of the reference
// corpus) to chemical elements.
var iacmElements = map[string]string{
	"O": "O", "OM": "O", "OA": "O", "OE": "O", "OW": "O",
	"N": "N", "NT": "N", "NL": "N", "NR": "N", "NZ": "N", "NE": "N",
	"C": "C", "CH0": "C", "CH1": "C", "CH2": "C", "CH3": "C", "CH4": "C", "CH2r": "C", "CR1": "C",
	"HC": "H", "H": "H",
	"S": "S",
	"CU1+": "Cu", "CU2+": "Cu",
	"FE":   "Fe",
	"ZN2+": "Zn",
	"MG2+": "Mg",
	"CA2+": "Ca",
	"P,SI": "P",
	"SI":   "Si",
	"AR":   "Ar",
	"F":    "F",
	"CL":   "Cl",
	"BR":   "Br",
	"I":    "I",
	"CMet": "C", "OMet": "O",
	"NA+": "Na", "CL-": "Cl",
	"CChl": "C", "CLChl": "Cl", "HChl": "H",
	"SDmso": "S", "CDmso": "C", "ODmso": "O",
	"CCl4": "C", "CLCl4": "Cl",
	"FTFE": "F", "CTFE": "C", "CHTFE": "C", "OTFE": "O",
	"CUrea": "C", "OUrea": "O", "NUrea": "N", "HUrea": "H",
}

// ElementOf returns the element of an IACM atom type.
func ElementOf(atomType string) (string, error) {
	el, ok := iacmElements[atomType]
	if !ok {
		return "", errors.New(errors.CodeUnknownAtomType, "no element for atom type").
			WithDetailf("type=%q", atomType)
	}
	return el, nil
}

// ForTyping returns g unchanged for Native and an element-typed copy for
// Element.
func (g *Graph) ForTyping(t Typing) (*Graph, error) {
	if t == Element {
		return g.Retype(ElementOf)
	}
	return g, nil
}
