package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// dirMarker is the value readTree uses for directories.
const dirMarker = "<dir>"

var refTime = time.Date(2019, 11, 10, 12, 0, 0, 0, time.UTC)

type mockFile struct {
	path     string
	contents string
	mode     os.FileMode
	modTime  time.Time
}

func (f mockFile) WithContents(contents string) mockFile {
	f.contents = contents
	return f
}

func (f mockFile) WithModTime(modTime time.Time) mockFile {
	f.modTime = modTime
	return f
}

func (f mockFile) WithPath(path string) mockFile {
	f.path = path
	return f
}

func (f mockFile) writeTo(t *testing.T, fs afero.Fs) {
	t.Helper()

	mode := f.mode
	if mode == 0 {
		mode = 0644
	}

	modTime := f.modTime
	if modTime.IsZero() {
		modTime = refTime
	}

	require.NoError(t, fs.MkdirAll(filepath.Dir(f.path), 0755))
	require.NoError(t, afero.WriteFile(fs, f.path, []byte(f.contents), mode))
	require.NoError(t, fs.Chtimes(f.path, modTime, modTime))
}

func writeFiles(t *testing.T, fs afero.Fs, files ...mockFile) {
	t.Helper()
	for _, f := range files {
		f.writeTo(t, fs)
	}
}

func makeDirs(t *testing.T, fs afero.Fs, dirs ...string) {
	t.Helper()
	for _, dir := range dirs {
		require.NoError(t, fs.MkdirAll(dir, 0755))
	}
}

// readTree returns the contents of every file under root keyed by its path
// relative to root. Directories map to dirMarker.
func readTree(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()

	tree := map[string]string{}
	err := afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}

		if fi.IsDir() {
			tree[rel] = dirMarker
			return nil
		}

		contents, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		tree[rel] = string(contents)
		return nil
	})
	require.NoError(t, err)
	return tree
}

func modTime(t *testing.T, fs afero.Fs, path string) time.Time {
	t.Helper()
	fi, err := fs.Stat(path)
	require.NoError(t, err)
	return fi.ModTime()
}
