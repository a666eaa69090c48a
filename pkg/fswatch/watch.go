// Package fswatch notifies the sync driver when the source tree changes, so
// that a pass can start before the interval elapses.
package fswatch

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

var fs = afero.NewOsFs()

// Watcher watches every directory in a source tree.
type Watcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
}

// Watch watches the tree rooted at root. It sends an event on Changes whenever
// anything within the tree changes. Bursts of changes are combined into a
// single event.
// Directories created after Watch returns are watched as they're noticed.
func Watch(root string) (*Watcher, error) {
	pathsToWatch, err := getPathsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, path := range pathsToWatch {
		if err := watcher.Add(path); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
	}

	w := &Watcher{watcher: watcher}
	w.changes = combineUpdates(watcher.Events, w.watchCreatedDir)
	go logErrors(watcher.Errors)
	return w, nil
}

// Changes returns the channel that's signalled when the tree changes.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// watchCreatedDir starts watching new subdirectories, since fsnotify doesn't
// watch recursively.
func (w *Watcher) watchCreatedDir(event fsnotify.Event) {
	if event.Op&fsnotify.Create == 0 {
		return
	}

	paths, err := getPathsToWatch(event.Name)
	if err != nil {
		// The path may have already been removed again.
		log.WithError(err).WithField("path", event.Name).Debug("Failed to list new directory")
		return
	}

	for _, path := range paths {
		if err := w.watcher.Add(path); err != nil {
			log.WithError(err).WithField("path", path).Warn("Failed to watch new directory")
		}
	}
}

// combineUpdates coalesces events so that a burst of changes only triggers a
// single pass. onEvent is called for every event before it's combined.
func combineUpdates(updates <-chan fsnotify.Event, onEvent func(fsnotify.Event)) chan struct{} {
	combined := make(chan struct{}, 1)
	go func() {
		for event := range updates {
			if onEvent != nil {
				onEvent(event)
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

func logErrors(errs <-chan error) {
	for err := range errs {
		log.WithError(err).Warn("File watcher error")
	}
}

// getPathsToWatch returns root and all of the directories beneath it. The
// files themselves don't need to be watched, since a directory watch reports
// changes to its entries.
func getPathsToWatch(root string) (paths []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, nil
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
