// Package archive persists a charge repository as a zip container of five
// MessagePack entries: meta, charges_iacm, charges_elem, iso_iacm, iso_elem.
package archive

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/turtacn/charge-repository/internal/domain/charge"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	"github.com/turtacn/charge-repository/pkg/errors"
)

const (
	entryMeta     = "meta"
	chargesPrefix = "charges_"
	isoPrefix     = "iso_"
)

func chargesEntry(t molecule.Typing) string { return chargesPrefix + t.String() }
func isoEntry(t molecule.Typing) string     { return isoPrefix + t.String() }

type namedEntry struct {
	name string
	data []byte
}

// WriteTo streams the archive of repo to w.
func WriteTo(w io.Writer, repo *charge.Repository) error {
	zw := zip.NewWriter(w)
	shellMin, shellMax := repo.ShellRange()
	traceable := repo.Traceable()

	entries := []namedEntry{{entryMeta, encodeMeta(meta{shellMin: shellMin, shellMax: shellMax, traceable: traceable})}}
	for _, t := range molecule.Typings {
		entries = append(entries, namedEntry{chargesEntry(t), encodeStore(repo.Store(t), traceable)})
	}
	for _, t := range molecule.Typings {
		entries = append(entries, namedEntry{isoEntry(t), encodeIso(repo.IsoIndex(t))})
	}

	for _, e := range entries {
		f, err := zw.Create(e.name)
		if err != nil {
			return errors.New(errors.CodeArchiveWrite, "create archive entry").
				WithDetailf("entry=%s", e.name).WithCause(err)
		}
		if _, err := f.Write(e.data); err != nil {
			return errors.New(errors.CodeArchiveWrite, "write archive entry").
				WithDetailf("entry=%s", e.name).WithCause(err)
		}
	}
	if err := zw.Close(); err != nil {
		return errors.New(errors.CodeArchiveWrite, "finish archive").WithCause(err)
	}
	return nil
}

// Write stores repo at path, replacing any existing file atomically.  It
// returns the archive size.
func Write(path string, repo *charge.Repository) (int64, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	// The temporary file shares the target's directory so the rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return 0, errors.New(errors.CodeArchiveWrite, "create temporary archive").
			WithDetailf("path=%s", path).WithCause(err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()
	_ = tmp.Chmod(0o644)

	fail := func(msg string, err error) (int64, error) {
		return 0, errors.New(errors.CodeArchiveWrite, msg).WithDetailf("path=%s", path).WithCause(err)
	}

	bw := bufio.NewWriterSize(tmp, 256*1024)
	cw := &countingWriter{w: bw}
	if err := WriteTo(cw, repo); err != nil {
		return 0, errors.Wrap(err, errors.CodeUnknown, "encode archive").WithDetailf("path=%s", path)
	}
	if err := bw.Flush(); err != nil {
		return fail("flush archive", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync archive", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("close archive", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fail("rename archive into place", err)
	}
	tmpName = ""

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Read loads the archive at path.  opts configure the returned repository;
// its shell range and traceability always come from the archive.
func Read(path string, opts ...charge.Option) (*charge.Repository, error) {
	f, err := os.Open(path)
	if err != nil {
		code := errors.CodeArchiveRead
		if os.IsNotExist(err) {
			code = errors.CodeNotFound
		}
		return nil, errors.New(code, "open archive").WithDetailf("path=%s", path).WithCause(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.New(errors.CodeArchiveRead, "stat archive").WithDetailf("path=%s", path).WithCause(err)
	}
	repo, err := ReadFrom(f, info.Size(), opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUnknown, "read archive").WithDetailf("path=%s", path)
	}
	return repo, nil
}

// ReadBytes decodes an archive held in memory.
func ReadBytes(data []byte, opts ...charge.Option) (*charge.Repository, error) {
	return ReadFrom(bytes.NewReader(data), int64(len(data)), opts...)
}

// ReadFrom decodes an archive of the given size.
func ReadFrom(r io.ReaderAt, size int64, opts ...charge.Option) (*charge.Repository, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errors.New(errors.CodeArchiveRead, "not a zip archive").WithCause(err)
	}

	raw := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, errors.New(errors.CodeArchiveRead, "open archive entry").
				WithDetailf("entry=%s", f.Name).WithCause(err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, errors.New(errors.CodeArchiveRead, "read archive entry").
				WithDetailf("entry=%s", f.Name).WithCause(err)
		}
		raw[f.Name] = data
	}
	entry := func(name string) ([]byte, error) {
		data, ok := raw[name]
		if !ok {
			return nil, errors.New(errors.CodeArchiveRead, "archive entry missing").WithDetailf("entry=%s", name)
		}
		return data, nil
	}

	data, err := entry(entryMeta)
	if err != nil {
		return nil, err
	}
	m, err := decodeMeta(data)
	if err != nil {
		return nil, err
	}

	opts = append(append([]charge.Option(nil), opts...), charge.WithTraceable(m.traceable))
	repo, err := charge.New(m.shellMin, m.shellMax, opts...)
	if err != nil {
		return nil, err
	}
	for _, t := range molecule.Typings {
		if data, err = entry(chargesEntry(t)); err != nil {
			return nil, err
		}
		store, err := decodeStore(chargesEntry(t), data, m)
		if err != nil {
			return nil, err
		}
		if data, err = entry(isoEntry(t)); err != nil {
			return nil, err
		}
		iso, err := decodeIso(isoEntry(t), data)
		if err != nil {
			return nil, err
		}
		repo.Load(t, store, iso)
	}
	return repo, nil
}
