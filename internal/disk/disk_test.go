package disk

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

func TestGetUsage(t *testing.T) {
	u, err := GetUsage(t.TempDir())
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if u.TotalBytes <= 0 || u.FreeBytes < 0 || u.FreeBytes > u.TotalBytes {
		t.Errorf("implausible usage: %+v", u)
	}
	if p := u.UsedPercent() + u.FreePercent(); p < 99.999 || p > 100.001 {
		t.Errorf("used + free = %v", p)
	}

	if _, err := GetUsage(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestUsagePercentages(t *testing.T) {
	u := &Usage{TotalBytes: 400, FreeBytes: 100}
	if u.UsedPercent() != 75 || u.FreePercent() != 25 || u.UsedBytes() != 300 {
		t.Errorf("unexpected percentages for %+v", u)
	}
	empty := &Usage{}
	if empty.UsedPercent() != 0 {
		t.Errorf("empty filesystem used percent = %v", empty.UsedPercent())
	}
}

func TestIsNFSStale(t *testing.T) {
	if IsNFSStale(t.TempDir(), time.Second) {
		t.Error("local temp dir reported stale")
	}
	if IsNFSStale(filepath.Join(t.TempDir(), "missing"), time.Second) {
		t.Error("missing path is not a stale mount")
	}
}

func TestIsStaleError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{os.ErrNotExist, false},
		{&os.PathError{Op: "stat", Path: "/mnt/nfs", Err: syscall.ESTALE}, true},
		{fmt.Errorf("wrapped: %w", syscall.EIO), true},
		{syscall.ENXIO, true},
		{syscall.EACCES, false},
	}
	for _, tt := range tests {
		if got := isStaleError(tt.err); got != tt.expected {
			t.Errorf("isStaleError(%v) = %v, expected %v", tt.err, got, tt.expected)
		}
	}
}
