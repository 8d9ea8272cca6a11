package disk

import (
	"errors"
	"os"
	"syscall"
	"time"
)

// Usage describes the filesystem holding a path.
type Usage struct {
	TotalBytes int64
	FreeBytes  int64
}

func (u *Usage) UsedBytes() int64 {
	return u.TotalBytes - u.FreeBytes
}

// UsedPercent is 0 for a filesystem reporting no capacity.
func (u *Usage) UsedPercent() float64 {
	if u.TotalBytes <= 0 {
		return 0
	}
	return float64(u.UsedBytes()) / float64(u.TotalBytes) * 100.0
}

func (u *Usage) FreePercent() float64 {
	return 100.0 - u.UsedPercent()
}

// GetUsage stats the filesystem containing path. Free space counts only blocks
// available to unprivileged users.
func GetUsage(path string) (*Usage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil, &os.PathError{Op: "statfs", Path: path, Err: err}
	}
	return &Usage{
		TotalBytes: int64(stat.Blocks) * int64(stat.Bsize),
		FreeBytes:  int64(stat.Bavail) * int64(stat.Bsize),
	}, nil
}

// IsNFSStale reports whether a stat of path hangs for longer than timeout or
// fails with an error typical of a dead NFS mount (EIO, ESTALE, ENXIO).
func IsNFSStale(path string, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		_, err := os.Stat(path)
		done <- err
	}()

	select {
	case err := <-done:
		return isStaleError(err)
	case <-time.After(timeout):
		return true
	}
}

func isStaleError(err error) bool {
	if err == nil {
		return false
	}
	return os.IsTimeout(err) ||
		errors.Is(err, syscall.EIO) ||
		errors.Is(err, syscall.ESTALE) ||
		errors.Is(err, syscall.ENXIO)
}
