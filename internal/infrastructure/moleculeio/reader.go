// Package moleculeio reads molecule graphs from a corpus directory holding
// one file per molecule, named <molid><extension>.
package moleculeio

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Decoder parses one molecule file format.
type Decoder interface {
	Extension() string
	Decode(r io.Reader) (*molecule.Graph, error)
}

// DecoderFor returns the decoder of a configured format name.
func DecoderFor(format string) (Decoder, error) {
	switch strings.ToLower(format) {
	case "lgf":
		return LGF{}, nil
	case "yaml", "yml":
		return YAML{}, nil
	default:
		return nil, errors.New(errors.CodeUnsupportedFormat, "unsupported molecule format").
			WithDetailf("format=%q", format)
	}
}

// Reader is the corpus access used by builds and incremental updates.
type Reader interface {
	// ListIDs returns the molecule ids present, ascending.
	ListIDs() ([]int, error)
	// Read loads one molecule.
	Read(molid int) (molecule.Molecule, error)
}

// DirReader reads molecules from a directory.
type DirReader struct {
	dir    string
	dec    Decoder
	logger logging.Logger
}

var _ Reader = (*DirReader)(nil)

// NewDirReader returns a reader for dir in the given format.
func NewDirReader(dir, format string, logger logging.Logger) (*DirReader, error) {
	dec, err := DecoderFor(format)
	if err != nil {
		return nil, err
	}
	return &DirReader{dir: dir, dec: dec, logger: logging.OrDefault(logger).Named("moleculeio")}, nil
}

// Dir returns the corpus directory.
func (r *DirReader) Dir() string { return r.dir }

// Extension returns the file extension of the configured format.
func (r *DirReader) Extension() string { return r.dec.Extension() }

// Path returns the file name of molid.
func (r *DirReader) Path(molid int) string {
	return filepath.Join(r.dir, strconv.Itoa(molid)+r.dec.Extension())
}

// IDFromPath extracts the molecule id from a corpus file name.  Only the
// name Path would produce for the id is accepted, so "01.lgf" and "+1.lgf"
// do not alias "1.lgf".
func (r *DirReader) IDFromPath(path string) (int, bool) {
	stem, ok := strings.CutSuffix(filepath.Base(path), r.dec.Extension())
	if !ok {
		return 0, false
	}
	return parseMolID(stem)
}

func parseMolID(stem string) (int, bool) {
	id, err := strconv.Atoi(stem)
	if err != nil || strconv.Itoa(id) != stem {
		return 0, false
	}
	return id, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ListIDs implements Reader.  Files with the right extension but a
// non-integer name are skipped with a warning.
func (r *DirReader) ListIDs() ([]int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		code := errors.CodeInvalidParam
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return nil, errors.New(code, "list corpus directory").WithDetailf("dir=%s", r.dir).WithCause(err)
	}
	var ids []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), r.dec.Extension()) {
			continue
		}
		id, ok := r.IDFromPath(e.Name())
		if !ok {
			r.logger.Warn("skipping file without a molecule id", logging.String("file", e.Name()))
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Read implements Reader.
func (r *DirReader) Read(molid int) (molecule.Molecule, error) {
	g, err := decodeFile(r.Path(molid), r.dec)
	if err != nil {
		return molecule.Molecule{}, err
	}
	return molecule.Molecule{ID: molid, Graph: g}, nil
}

// ReadFile loads a single molecule file, picking the decoder from its
// extension.  The molecule id comes from a <molid><ext> file name and is 0
// for any other name.
func ReadFile(path string) (molecule.Molecule, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	dec, err := DecoderFor(ext)
	if err != nil {
		return molecule.Molecule{}, err
	}
	g, err := decodeFile(path, dec)
	if err != nil {
		return molecule.Molecule{}, err
	}
	molid, _ := parseMolID(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return molecule.Molecule{ID: molid, Graph: g}, nil
}

func decodeFile(path string, dec Decoder) (*molecule.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		code := errors.CodeMalformedInput
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return nil, errors.New(code, "open molecule file").WithDetailf("path=%s", path).WithCause(err)
	}
	defer f.Close()

	g, err := dec.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "parse molecule file").WithDetailf("path=%s", path)
	}
	return g, nil
}
