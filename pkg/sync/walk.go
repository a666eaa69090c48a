package sync

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// DirRecord describes the immediate children of one source directory.
type DirRecord struct {
	// Path is the directory's path on the source filesystem.
	Path string

	// Rel is Path relative to the source root. The root itself is ".".
	Rel string

	// Dirs and Files are the names of the subdirectories and regular files
	// directly inside Path, sorted by name. Symlinks to regular files are
	// listed in Files.
	Dirs  []string
	Files []string

	// Skipped holds entries that aren't mirrored: symlinks to directories,
	// dangling symlinks, and special files such as sockets or devices.
	Skipped []SkippedEntry
}

// SkippedEntry is a source entry that has no replica counterpart.
type SkippedEntry struct {
	Name   string
	Reason string
}

// Walker yields the directories of a source tree in pre-order: every directory
// comes before its children. Directories are read lazily as they're reached,
// so a Walker can only be consumed once.
type Walker struct {
	fs      afero.Fs
	root    string
	pending []string
}

// WalkSource returns a Walker over the tree rooted at root.
func WalkSource(fs afero.Fs, root string) *Walker {
	return &Walker{fs: fs, root: root, pending: []string{"."}}
}

// Next returns the next directory. The boolean is false once the tree is
// exhausted, or after an error has been returned.
func (w *Walker) Next() (DirRecord, bool, error) {
	if len(w.pending) == 0 {
		return DirRecord{}, false, nil
	}

	rel := w.pending[len(w.pending)-1]
	w.pending = w.pending[:len(w.pending)-1]

	path := filepath.Join(w.root, rel)
	rec, err := readLevel(w.fs, path)
	if err != nil {
		w.pending = nil
		return DirRecord{}, false, errors.WithContext(err, fmt.Sprintf("read %s", path))
	}
	rec.Rel = rel

	// Push in reverse so that children are popped in name order.
	for i := len(rec.Dirs) - 1; i >= 0; i-- {
		w.pending = append(w.pending, filepath.Join(rel, rec.Dirs[i]))
	}
	return rec, true, nil
}

// readLevel lists dir and sorts its entries into the fields of a DirRecord.
func readLevel(fs afero.Fs, dir string) (DirRecord, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return DirRecord{}, err
	}

	rec := DirRecord{Path: dir}
	for _, entry := range entries {
		name := entry.Name()
		mode := entry.Mode()
		switch {
		case mode.IsDir():
			rec.Dirs = append(rec.Dirs, name)
		case mode.IsRegular():
			rec.Files = append(rec.Files, name)
		case mode&os.ModeSymlink != 0:
			target, err := fs.Stat(filepath.Join(dir, name))
			switch {
			case err != nil:
				rec.Skipped = append(rec.Skipped, SkippedEntry{name, "dangling symlink"})
			case target.Mode().IsRegular():
				rec.Files = append(rec.Files, name)
			case target.IsDir():
				rec.Skipped = append(rec.Skipped, SkippedEntry{name, "symlink to directory"})
			default:
				rec.Skipped = append(rec.Skipped, SkippedEntry{name, "symlink to special file"})
			}
		default:
			rec.Skipped = append(rec.Skipped, SkippedEntry{name, "special file"})
		}
	}
	return rec, nil
}
