//go:build !windows

package sync

import (
	"syscall"

	"github.com/sidkik/replisync/pkg/errors"
)

// The max file limit is 10240, even though the max returned by Getrlimit is
// 1<<63-1. This is OPEN_MAX in sys/syslimits.h.
const osxMaxSoftOpenFilesLimit = 10240

// setOpenFilesLimit raises the soft limit on open files, since the watcher
// holds a file descriptor for every directory in the source.
func setOpenFilesLimit() error {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return errors.WithContext(err, "get current limit")
	}

	raised, ok := raiseOpenFilesLimit(rLimit)
	if !ok {
		return nil
	}
	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &raised)
}

// raiseOpenFilesLimit returns the limit to set, and false if the current soft
// limit is already at least as high.
func raiseOpenFilesLimit(rLimit syscall.Rlimit) (syscall.Rlimit, bool) {
	target := rLimit.Max
	if target > osxMaxSoftOpenFilesLimit {
		target = osxMaxSoftOpenFilesLimit
	}

	if rLimit.Cur >= target {
		return rLimit, false
	}

	rLimit.Cur = target
	return rLimit, true
}
