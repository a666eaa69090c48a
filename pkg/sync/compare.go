package sync

import (
	"os"

	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// Mode selects how FilesChanged decides whether a replica file is stale.
type Mode string

const (
	// ModeTimestamp compares modification times. It only touches metadata, and
	// relies on copies preserving the source's modification time.
	ModeTimestamp Mode = "timestamp"

	// ModeHash compares sizes and then full content digests. Both files are
	// read in full on every comparison.
	ModeHash Mode = "hash"
)

// Options configures how files are compared.
type Options struct {
	Mode          Mode
	HashAlgorithm HashAlgorithm
}

// FilesChanged returns whether replicaFile has to be refreshed from
// sourceFile. A missing replica, or a replica path that isn't a regular file,
// always counts as changed.
func FilesChanged(fs afero.Fs, sourceFile, replicaFile string, opts Options) (bool, error) {
	srcInfo, err := fs.Stat(sourceFile)
	if err != nil {
		return false, errors.WithContext(err, "stat source")
	}

	dstInfo, err := lstat(fs, replicaFile)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.WithContext(err, "stat replica")
	}

	if !dstInfo.Mode().IsRegular() {
		return true, nil
	}

	switch opts.Mode {
	case ModeTimestamp, "":
		return !srcInfo.ModTime().Equal(dstInfo.ModTime()), nil
	case ModeHash:
		if srcInfo.Size() != dstInfo.Size() {
			return true, nil
		}

		srcHash, err := HashFile(fs, sourceFile, opts.HashAlgorithm)
		if err != nil {
			return false, errors.WithContext(err, "hash source")
		}

		dstHash, err := HashFile(fs, replicaFile, opts.HashAlgorithm)
		if err != nil {
			return false, errors.WithContext(err, "hash replica")
		}
		return srcHash != dstHash, nil
	default:
		return false, errors.New("unknown comparison mode %q", opts.Mode)
	}
}

// lstat stats path without following a trailing symlink, if the filesystem
// supports it.
func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if lstater, ok := fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(path)
		return fi, err
	}
	return fs.Stat(path)
}
