package sync

import (
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/sidkik/replisync/pkg/errors"
)

// copyFile overwrites dst with the contents of src, and then copies over the
// permission bits and modification time so that ModeTimestamp considers the
// two files equal afterwards.
func copyFile(fs afero.Fs, src, dst string) error {
	srcInfo, err := fs.Stat(src)
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	in, err := fs.Open(src)
	if err != nil {
		return errors.WithContext(err, "open source")
	}
	defer in.Close()

	out, err := fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return errors.WithContext(err, "open replica")
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.WithContext(err, "write")
	}

	if err := out.Close(); err != nil {
		return errors.WithContext(err, "close replica")
	}

	// The mode passed to OpenFile is ignored when the file already exists, and
	// is subject to the umask when it doesn't.
	if err := fs.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
		return errors.WithContext(err, "chmod")
	}

	if err := fs.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return errors.WithContext(err, "chtimes")
	}
	return nil
}
