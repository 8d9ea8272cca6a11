package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dircrawl/internal/config"
)

const (
	defaultDir   = "/var/log/dircrawl"
	logFile      = "dircrawl.log"
	rotateLayout = "20060102-150405"
)

// New returns a logger writing to stdout and to dircrawl.log in dir. The file
// is rotated once it is older than rotationDays; when it cannot be opened the
// logger writes to stdout only.
func New(dir string, rotationDays int) *log.Logger {
	return newLogger(os.Stdout, dir, rotationDays)
}

// NewWithConfig applies the logging section of cfg. A nil cfg uses defaults.
func NewWithConfig(cfg *config.Config) *log.Logger {
	dir, days := defaultDir, 30
	if cfg != nil {
		if cfg.Logging.Dir != "" {
			dir = cfg.Logging.Dir
		}
		if cfg.Logging.RotationDays > 0 {
			days = cfg.Logging.RotationDays
		}
	}
	return New(dir, days)
}

// NewConsole returns a logger that writes to w only, for one-off runs.
func NewConsole(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

func newLogger(console io.Writer, dir string, rotationDays int) *log.Logger {
	flags := log.LstdFlags | log.Lmicroseconds
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("failed to ensure log directory %s: %v", dir, err)
		return log.New(console, "", flags)
	}

	filePath := filepath.Join(dir, logFile)
	rotateIfNeeded(filePath, rotationDays, time.Now())

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("failed to open log file %s: %v", filePath, err)
		return log.New(console, "", flags)
	}
	return log.New(io.MultiWriter(console, f), "", flags)
}

// rotateIfNeeded renames logPath with its modification time once it is older
// than rotationDays, then prunes rotations older than twice that.
func rotateIfNeeded(logPath string, rotationDays int, now time.Time) {
	info, err := os.Stat(logPath)
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -rotationDays)
	if !info.ModTime().Before(cutoff) {
		return
	}
	rotated := logPath + "." + info.ModTime().Format(rotateLayout)
	if err := os.Rename(logPath, rotated); err != nil {
		log.Printf("failed to rotate log file: %v", err)
		return
	}
	pruneRotations(logPath, cutoff.AddDate(0, 0, -rotationDays))
}

func pruneRotations(logPath string, cutoff time.Time) {
	dir := filepath.Dir(logPath)
	prefix := filepath.Base(logPath) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		stamp, err := time.ParseInLocation(rotateLayout, strings.TrimPrefix(entry.Name(), prefix), time.Local)
		if err != nil || !stamp.Before(cutoff) {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		if err := os.Remove(full); err != nil {
			log.Printf("failed to remove old log file %s: %v", full, err)
		}
	}
}
