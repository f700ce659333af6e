package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/evtship/internal/model"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("<Events/>"), 0o644))
}

func handles(sources []model.LogSource) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = s.Handle
	}
	return out
}

func TestResolve_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Security.evtx.txt")
	touch(t, path)

	sources, err := Resolve(path, ".xml")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, model.LogSource{Name: "Security.evtx.txt", Handle: path, Kind: model.Archive}, sources[0])
}

func TestResolve_DirectoryRecursive(t *testing.T) {
	dir := t.TempDir()
	want := []string{
		filepath.Join(dir, "Application.xml"),
		filepath.Join(dir, "b", "System.XML"),
		filepath.Join(dir, "b", "c", "Setup.xml"),
	}
	for _, p := range want {
		touch(t, p)
	}
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "b", "old.xml.bak"))

	sources, err := Resolve(dir, ".xml")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, handles(sources))
	for _, s := range sources {
		assert.Equal(t, model.Archive, s.Kind)
		assert.Equal(t, filepath.Base(s.Handle), s.Name)
	}
}

func TestResolve_CountMatchesFiles(t *testing.T) {
	for _, n := range []int{0, 1, 3, 8} {
		dir := t.TempDir()
		for i := 0; i < n; i++ {
			sub := dir
			if i%2 == 1 {
				sub = filepath.Join(dir, "nested", "deeper")
			}
			touch(t, filepath.Join(sub, "log"+string(rune('a'+i))+".evtx"))
		}
		sources, err := Resolve(dir, "")
		require.NoError(t, err)
		assert.Len(t, sources, n)
	}
}

func TestResolve_ExtensionWithoutDot(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.evtxml"))
	touch(t, filepath.Join(dir, "b.xml"))

	sources, err := Resolve(dir, "EVTXML")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.evtxml")}, handles(sources))
}

func TestResolve_WalkOrderIsLexical(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "z.xml"))
	touch(t, filepath.Join(dir, "a.xml"))
	touch(t, filepath.Join(dir, "m", "b.xml"))

	sources, err := Resolve(dir, ".xml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.xml"),
		filepath.Join(dir, "m", "b.xml"),
		filepath.Join(dir, "z.xml"),
	}, handles(sources))
}

func TestResolve_InvalidInput(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "missing"), ".xml")
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	_, err = Resolve("", ".xml")
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestResolve_DefaultMatchesEVTX(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "System.evtx"))
	touch(t, filepath.Join(dir, "old", "Security.EVTX"))
	touch(t, filepath.Join(dir, "System.xml"))

	sources, err := Resolve(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "System.evtx"),
		filepath.Join(dir, "old", "Security.EVTX"),
	}, handles(sources))
}
