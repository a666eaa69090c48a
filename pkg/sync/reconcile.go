package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// dirPerm is the mode used for directories created in the replica.
const dirPerm = 0755

// Stats counts the changes made to the replica.
type Stats struct {
	DirsCreated  int
	FilesCopied  int
	FilesRemoved int
	DirsRemoved  int
}

// Add accumulates other into stats.
func (stats *Stats) Add(other Stats) {
	stats.DirsCreated += other.DirsCreated
	stats.FilesCopied += other.FilesCopied
	stats.FilesRemoved += other.FilesRemoved
	stats.DirsRemoved += other.DirsRemoved
}

// Changed returns whether the replica was modified at all.
func (stats Stats) Changed() bool {
	return stats != Stats{}
}

// Fields returns the stats in a form suitable for structured logging.
func (stats Stats) Fields() logrus.Fields {
	return logrus.Fields{
		"dirsCreated":  stats.DirsCreated,
		"filesCopied":  stats.FilesCopied,
		"filesRemoved": stats.FilesRemoved,
		"dirsRemoved":  stats.DirsRemoved,
	}
}

// Reconciler makes a single replica directory level match its source
// directory. It doesn't recurse.
type Reconciler struct {
	fs   afero.Fs
	log  *logrus.Logger
	opts Options
}

// NewReconciler creates a Reconciler that mutates the replica through fs.
func NewReconciler(fs afero.Fs, log *logrus.Logger, opts Options) Reconciler {
	return Reconciler{fs: fs, log: log, opts: opts}
}

// ReconcileLevel makes the immediate children of replicaDir match those of
// sourceDir:
// 1) replicaDir is created if it doesn't exist.
// 2) Files that FilesChanged reports as changed are copied over.
// 3) Entries in replicaDir that don't exist in sourceDir are removed.
//    Directories are removed along with their contents.
// Subdirectories of sourceDir are not descended into.
func (r Reconciler) ReconcileLevel(sourceDir, replicaDir string) (Stats, error) {
	rec, err := readLevel(r.fs, sourceDir)
	if err != nil {
		return Stats{}, errors.WithContext(err, "read source")
	}
	return r.reconcile(rec, replicaDir)
}

func (r Reconciler) reconcile(rec DirRecord, replicaDir string) (stats Stats, err error) {
	created, err := r.ensureDirectory(replicaDir, &stats)
	if err != nil {
		return stats, errors.WithContext(err, "create directory")
	}

	for _, skipped := range rec.Skipped {
		r.log.WithFields(logrus.Fields{
			"path":   filepath.Join(rec.Path, skipped.Name),
			"reason": skipped.Reason,
		}).Warn("Skipping source entry")
	}

	for _, name := range rec.Files {
		srcPath := filepath.Join(rec.Path, name)
		dstPath := filepath.Join(replicaDir, name)
		if err := r.syncFile(srcPath, dstPath, &stats); err != nil {
			return stats, errors.WithContext(err, fmt.Sprintf("sync %s", name))
		}
	}

	// A directory we just created can't contain anything stale.
	if created {
		return stats, nil
	}

	if err := r.removeExtra(rec, replicaDir, &stats); err != nil {
		return stats, errors.WithContext(err, "remove extra entries")
	}
	return stats, nil
}

// ensureDirectory creates replicaDir if needed, and returns whether it did so.
// Anything other than a directory that occupies the path is removed first.
func (r Reconciler) ensureDirectory(replicaDir string, stats *Stats) (bool, error) {
	fi, err := lstat(r.fs, replicaDir)
	switch {
	case err == nil && fi.IsDir():
		return false, nil
	case err == nil:
		if err := r.remove(replicaDir, fi, stats); err != nil {
			return false, err
		}
	case !os.IsNotExist(err):
		return false, errors.WithContext(err, "stat")
	}

	if err := r.fs.MkdirAll(replicaDir, dirPerm); err != nil {
		return false, err
	}
	r.log.Infof("Created directory %s", replicaDir)
	stats.DirsCreated++
	return true, nil
}

func (r Reconciler) syncFile(srcPath, dstPath string, stats *Stats) error {
	changed, err := FilesChanged(r.fs, srcPath, dstPath, r.opts)
	if err != nil {
		return errors.WithContext(err, "compare")
	}

	if !changed {
		r.log.WithField("path", srcPath).Debug("Unchanged")
		return nil
	}

	// A directory or symlink in the replica can't be overwritten by a copy.
	if fi, err := lstat(r.fs, dstPath); err == nil && !fi.Mode().IsRegular() {
		if err := r.remove(dstPath, fi, stats); err != nil {
			return err
		}
	}

	if err := copyFile(r.fs, srcPath, dstPath); err != nil {
		return errors.WithContext(err, "copy")
	}
	r.log.Infof("Copied %s to %s", srcPath, dstPath)
	stats.FilesCopied++
	return nil
}

func (r Reconciler) removeExtra(rec DirRecord, replicaDir string, stats *Stats) error {
	expected := map[string]struct{}{}
	for _, name := range rec.Dirs {
		expected[name] = struct{}{}
	}
	for _, name := range rec.Files {
		expected[name] = struct{}{}
	}

	entries, err := afero.ReadDir(r.fs, replicaDir)
	if err != nil {
		return errors.WithContext(err, "read replica")
	}

	for _, entry := range entries {
		if _, ok := expected[entry.Name()]; ok {
			continue
		}

		if err := r.remove(filepath.Join(replicaDir, entry.Name()), entry, stats); err != nil {
			return err
		}
	}
	return nil
}

// remove deletes a replica entry. Directories are removed recursively, while
// symlinks are removed without touching their target.
func (r Reconciler) remove(path string, fi os.FileInfo, stats *Stats) error {
	if fi.IsDir() {
		if err := r.fs.RemoveAll(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("remove directory %s", path))
		}
		r.log.Infof("Removed directory %s", path)
		stats.DirsRemoved++
		return nil
	}

	if err := r.fs.Remove(path); err != nil {
		return errors.WithContext(err, fmt.Sprintf("remove file %s", path))
	}
	r.log.Infof("Removed file %s", path)
	stats.FilesRemoved++
	return nil
}
