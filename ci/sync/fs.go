package sync

import (
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ghodss/yaml"

	"github.com/sidkik/replisync/pkg/config"
	"github.com/sidkik/replisync/pkg/errors"
)

type file struct {
	path     string
	contents string
	mode     os.FileMode
	modTime  time.Time
}

func (f file) WithContents(contents string) file {
	f.contents = contents
	return f
}

func (f file) WithModTime(modTime time.Time) file {
	f.modTime = modTime
	return f
}

func randomFile(path string) file {
	randomTime := time.Date(2019, 11, 10, rand.Intn(23), rand.Intn(59), rand.Intn(59), 0, time.UTC)
	return file{
		path:     path,
		contents: strconv.Itoa(rand.Int()),
		mode:     os.FileMode(0640 | rand.Intn(8)),
		modTime:  randomTime,
	}
}

// entry is what the tree comparison looks at for each path.
type entry struct {
	isDir    bool
	contents string
	mode     os.FileMode
	modTime  int64
}

// mockFs contains helper methods for creating temporary source and replica
// trees. The source lives in a mock home directory so that `~` paths can be
// tested.
type mockFs struct {
	root    string
	homeDir string
	source  string
	replica string
	logFile string

	originalHomeDir string
}

type fsOp func(mockFs) error

func newMockFs() (mockFs, error) {
	root, err := ioutil.TempDir("", "replisync-test")
	if err != nil {
		return mockFs{}, errors.WithContext(err, "make root dir")
	}

	mockHomeDir := filepath.Join(root, "home")
	source := filepath.Join(mockHomeDir, "source")
	if err := os.MkdirAll(source, 0755); err != nil {
		return mockFs{}, errors.WithContext(err, "make source directory")
	}

	originalHomeDir := os.Getenv("HOME")
	os.Setenv("HOME", mockHomeDir)

	return mockFs{
		root:            root,
		homeDir:         mockHomeDir,
		source:          source,
		replica:         filepath.Join(root, "replica"),
		logFile:         filepath.Join(root, "sync_log.txt"),
		originalHomeDir: originalHomeDir,
	}, nil
}

func (fs mockFs) cleanup() error {
	os.Setenv("HOME", fs.originalHomeDir)
	return os.RemoveAll(fs.root)
}

func (fs mockFs) sourcePath(path string) string {
	return filepath.Join(fs.source, path)
}

func (fs mockFs) writeSyncConfig(cfg config.SyncConfig) (string, error) {
	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return "", errors.WithContext(err, "marshal")
	}

	path := filepath.Join(fs.root, "replisync.yaml")
	return path, ioutil.WriteFile(path, yamlBytes, 0644)
}

func createFile(toCreate file) fsOp {
	return func(fs mockFs) error {
		path := fs.sourcePath(toCreate.path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return errors.WithContext(err, "make parent")
		}

		if err := ioutil.WriteFile(path, []byte(toCreate.contents), toCreate.mode); err != nil {
			return errors.WithContext(err, "write")
		}

		// WriteFile doesn't change the mode of existing files.
		if err := os.Chmod(path, toCreate.mode); err != nil {
			return errors.WithContext(err, "chmod")
		}

		if err := os.Chtimes(path, time.Now(), toCreate.modTime); err != nil {
			return errors.WithContext(err, "chtimes")
		}
		return nil
	}
}

func createDir(path string) fsOp {
	return func(fs mockFs) error {
		return os.MkdirAll(fs.sourcePath(path), 0755)
	}
}

func remove(path string) fsOp {
	return func(fs mockFs) error {
		return os.RemoveAll(fs.sourcePath(path))
	}
}

// readTree returns every entry beneath root, keyed by its path relative to
// root.
func readTree(root string) (map[string]entry, error) {
	tree := map[string]entry{}
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		if rel == "." {
			return nil
		}

		if fi.IsDir() {
			tree[rel] = entry{isDir: true}
			return nil
		}

		contents, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}

		tree[rel] = entry{
			contents: string(contents),
			mode:     fi.Mode(),
			modTime:  fi.ModTime().UnixNano(),
		}
		return nil
	})
	return tree, err
}
