package moleculeio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/testutil"
	"github.com/turtacn/charge-repository/pkg/errors"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDecoderFor(t *testing.T) {
	d, err := DecoderFor("LGF")
	require.NoError(t, err)
	assert.Equal(t, ".lgf", d.Extension())

	d, err = DecoderFor("yml")
	require.NoError(t, err)
	assert.Equal(t, ".yaml", d.Extension())

	_, err = DecoderFor("sdf")
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedFormat))
}

func TestDirReader_ListIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10.lgf", ethanolLGF)
	writeFile(t, dir, "2.lgf", ethanolLGF)
	writeFile(t, dir, "notes.lgf", "")
	writeFile(t, dir, "3.yaml", waterYAML)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "7.lgf"), 0o755))

	log := testutil.NewMockLogger()
	r, err := NewDirReader(dir, "lgf", log)
	require.NoError(t, err)

	ids, err := r.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10}, ids)
	assert.NotEmpty(t, log.Find("warn", "skipping file"))
}

func TestDirReader_ListIDsMissingDir(t *testing.T) {
	r, err := NewDirReader(filepath.Join(t.TempDir(), "absent"), "yaml", logging.NewNopLogger())
	require.NoError(t, err)
	_, err = r.ListIDs()
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestDirReader_Read(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "5.yaml", waterYAML)
	writeFile(t, dir, "6.yaml", "atoms: []\n")

	r, err := NewDirReader(dir, "yaml", nil)
	require.NoError(t, err)

	mol, err := r.Read(5)
	require.NoError(t, err)
	assert.Equal(t, 5, mol.ID)
	assert.Equal(t, 3, mol.Graph.Len())

	_, err = r.Read(6)
	assert.True(t, errors.IsCode(err, errors.CodeMalformedInput))

	_, err = r.Read(99)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestDirReader_IDFromPath(t *testing.T) {
	r, err := NewDirReader("/corpus", "lgf", nil)
	require.NoError(t, err)

	id, ok := r.IDFromPath("/corpus/42.lgf")
	assert.True(t, ok)
	assert.Equal(t, 42, id)
	assert.Equal(t, filepath.Join("/corpus", "42.lgf"), r.Path(42))

	_, ok = r.IDFromPath("/corpus/42.yaml")
	assert.False(t, ok)
	_, ok = r.IDFromPath("/corpus/x.lgf")
	assert.False(t, ok)
	for _, name := range []string{"01.lgf", "+1.lgf", " 1.lgf"} {
		_, ok = r.IDFromPath("/corpus/" + name)
		assert.False(t, ok, name)
	}
	id, ok = r.IDFromPath("/corpus/-3.lgf")
	assert.True(t, ok)
	assert.Equal(t, -3, id)
}

func TestDirReader_ListIDsIgnoresAliasedNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "1.lgf", ethanolLGF)
	writeFile(t, dir, "01.lgf", ethanolLGF)
	writeFile(t, dir, "001.lgf", ethanolLGF)

	log := testutil.NewMockLogger()
	r, err := NewDirReader(dir, "lgf", log)
	require.NoError(t, err)

	ids, err := r.ListIDs()
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
	assert.Len(t, log.Find("warn", "skipping file"), 2)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "12.yml", waterYAML)
	writeFile(t, dir, "ethanol.lgf", ethanolLGF)
	writeFile(t, dir, "3.sdf", "")

	mol, err := ReadFile(filepath.Join(dir, "12.yml"))
	require.NoError(t, err)
	assert.Equal(t, 12, mol.ID)
	assert.Equal(t, 3, mol.Graph.Len())

	mol, err = ReadFile(filepath.Join(dir, "ethanol.lgf"))
	require.NoError(t, err)
	assert.Equal(t, 0, mol.ID)
	assert.Equal(t, 4, mol.Graph.Len())

	_, err = ReadFile(filepath.Join(dir, "3.sdf"))
	assert.True(t, errors.IsCode(err, errors.CodeUnsupportedFormat))

	_, err = ReadFile(filepath.Join(dir, "absent.lgf"))
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}
