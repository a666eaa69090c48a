package fswatch

import (
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/replisync/pkg/errors"
)

func TestGetPathsToWatch(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		dirs     []string
		files    []string
		expPaths []string
		expError error
	}{
		{
			name: "Nested directories",
			root: "/src",
			dirs: []string{"/src", "/src/app", "/src/app/controllers", "/src/empty"},
			files: []string{"/src/package.json", "/src/app/index.js",
				"/src/app/controllers/index.js"},
			expPaths: []string{"/src", "/src/app", "/src/app/controllers", "/src/empty"},
		},
		{
			name:  "Root is a file",
			root:  "/src/file",
			dirs:  []string{"/src"},
			files: []string{"/src/file"},
		},
		{
			name:     "Missing root",
			root:     "/missing",
			expError: errors.FileNotFound{Path: "/missing"},
		},
	}

	for _, test := range tests {
		fs = afero.NewMemMapFs()
		for _, dir := range test.dirs {
			assert.NoError(t, fs.Mkdir(dir, 0755))
		}
		for _, file := range test.files {
			assert.NoError(t, afero.WriteFile(fs, file, []byte("testfile"), 0644))
		}

		paths, err := getPathsToWatch(test.root)
		assert.Equal(t, test.expError, err, test.name)

		// Sort for consistency.
		sort.Strings(test.expPaths)
		sort.Strings(paths)
		assert.Equal(t, test.expPaths, paths, test.name)
	}
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan fsnotify.Event, 1024)
	addEvents := func(num int) {
		for i := 0; i < num; i++ {
			updates <- fsnotify.Event{}
		}
	}

	// Seed with events.
	numUpdates := 100
	addEvents(numUpdates)

	seen := make(chan fsnotify.Event, 1024)
	combined := combineUpdates(updates, func(event fsnotify.Event) { seen <- event })

	// Assert that the events are being combined.
	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)
	assert.Len(t, seen, numUpdates)

	// Add more events.
	addEvents(100)
	<-combined
}

func TestWatch(t *testing.T) {
	fs = afero.NewOsFs()
	root := t.TempDir()

	watcher, err := Watch(root)
	require.NoError(t, err)
	defer watcher.Close()

	// Directories created after the watch started are watched too.
	newDir := filepath.Join(root, "new-dir")
	require.NoError(t, fs.Mkdir(newDir, 0755))
	waitForChange(t, watcher)

	drain(watcher)
	require.NoError(t, afero.WriteFile(fs, filepath.Join(newDir, "file"), []byte("x"), 0644))
	waitForChange(t, watcher)
}

func waitForChange(t *testing.T, watcher *Watcher) {
	t.Helper()

	select {
	case <-watcher.Changes():
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func drain(watcher *Watcher) {
	for {
		select {
		case <-watcher.Changes():
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func countEvents(c chan struct{}) (n int) {
	// Block until the first event.
	<-c
	n++

	// Count the number of events until there hasn't been any new events in 500
	// milliseconds.
	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
