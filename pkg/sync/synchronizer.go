package sync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// Synchronizer mirrors a source tree into a replica tree.
type Synchronizer struct {
	fs         afero.Fs
	log        *logrus.Logger
	reconciler Reconciler
}

// NewSynchronizer creates a Synchronizer that reads and writes through fs.
func NewSynchronizer(fs afero.Fs, log *logrus.Logger, opts Options) *Synchronizer {
	return &Synchronizer{
		fs:         fs,
		log:        log,
		reconciler: NewReconciler(fs, log, opts),
	}
}

// Synchronize performs one complete pass. Source directories are visited
// top-down, and each one is reconciled against the directory at the same
// relative path under replicaRoot. Directories that only exist in the replica
// are never descended into: they're removed while reconciling their parent.
//
// The first error aborts the pass. The returned Stats describe the changes made
// up to that point.
func (s *Synchronizer) Synchronize(sourceRoot, replicaRoot string) (Stats, error) {
	mirrorRoot, err := s.checkRoots(sourceRoot, replicaRoot)
	if err != nil {
		return Stats{}, err
	}

	s.log.WithFields(logrus.Fields{
		"source":  sourceRoot,
		"replica": replicaRoot,
	}).Debug("Starting pass")

	var total Stats
	walker := WalkSource(s.fs, sourceRoot)
	for {
		rec, ok, err := walker.Next()
		if err != nil {
			return total, errors.WithContext(err, "walk source")
		}
		if !ok {
			break
		}

		replicaDir := filepath.Join(mirrorRoot, rec.Rel)
		stats, err := s.reconciler.reconcile(rec, replicaDir)
		total.Add(stats)
		if err != nil {
			return total, errors.WithContext(err, fmt.Sprintf("reconcile %s", replicaDir))
		}
	}
	return total, nil
}

// checkRoots makes sure that the pass can't destroy the source. This would
// happen if the replica contained the source, since the source would then be
// an extra entry in the replica.
// It returns the path that the replica tree should be written to. A replica
// root that's a symlink to a directory is followed rather than replaced.
func (s *Synchronizer) checkRoots(sourceRoot, replicaRoot string) (string, error) {
	fi, err := s.fs.Stat(sourceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.FileNotFound{Path: sourceRoot}
		}
		return "", errors.WithContext(err, "stat source")
	}

	if !fi.IsDir() {
		return "", errors.NotADirectory{Path: sourceRoot}
	}

	resolvedSource, err := resolveRoot(s.fs, sourceRoot)
	if err != nil {
		return "", errors.WithContext(err, "resolve source")
	}

	resolvedReplica, err := resolveRoot(s.fs, replicaRoot)
	if err != nil {
		return "", errors.WithContext(err, "resolve replica")
	}

	if isWithin(resolvedSource, resolvedReplica) || isWithin(resolvedReplica, resolvedSource) {
		return "", errors.NewFriendlyError("The source %q and replica %q overlap.\n"+
			"Neither directory may contain the other.", sourceRoot, replicaRoot)
	}

	if fi, err := lstat(s.fs, replicaRoot); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		if target, err := s.fs.Stat(replicaRoot); err == nil && target.IsDir() {
			s.log.WithFields(logrus.Fields{
				"replica": replicaRoot,
				"target":  resolvedReplica,
			}).Debug("Following symlinked replica root")
			return resolvedReplica, nil
		}
	}
	return replicaRoot, nil
}

// resolveRoot returns the absolute form of root. On the OS filesystem,
// symlinks are evaluated as well. Trailing components that don't exist yet are
// kept as they are.
func resolveRoot(fs afero.Fs, root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}

	if _, ok := fs.(*afero.OsFs); !ok {
		return abs, nil
	}
	return evalExistingSymlinks(abs)
}

func evalExistingSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}

	if !os.IsNotExist(err) {
		return "", err
	}

	parent := filepath.Dir(path)
	if parent == path {
		return path, nil
	}

	resolvedParent, err := evalExistingSymlinks(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(path)), nil
}

// isWithin returns whether path is parent, or a descendant of parent.
func isWithin(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
