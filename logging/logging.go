// Package logging builds the plugin process logger: slog text records
// written to stderr and to a per-run file in a log directory that keeps only
// the newest MaxFiles logs.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFiles is how many .log files are kept when Options.MaxFiles is 0.
const DefaultMaxFiles = 5

const fileTimeLayout = "2006-01-02-15-04-05"

// Options configures Setup.
type Options struct {
	Dir      string
	Level    string // debug, info, warn or error
	MaxFiles int

	Stderr io.Writer        // defaults to os.Stderr
	Now    func() time.Time // defaults to time.Now
}

// Setup creates <Dir>/<timestamp>.log, prunes older logs and returns a
// logger writing to both the file and Stderr. The closer closes the file.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(opts.Dir, opts.Now().Format(fileTimeLayout)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if _, err := Prune(opts.Dir, opts.MaxFiles); err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	handler := slog.NewTextHandler(io.MultiWriter(f, opts.Stderr), &slog.HandlerOptions{Level: level})
	return slog.New(handler), f, nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Prune deletes the oldest .log files in dir so at most keep remain and
// returns the removed paths.
func Prune(dir string, keep int) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list log directory: %w", err)
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var logs []logFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	// newest first
	sort.Slice(logs, func(i, j int) bool {
		if !logs[i].modTime.Equal(logs[j].modTime) {
			return logs[i].modTime.After(logs[j].modTime)
		}
		return logs[i].path > logs[j].path
	})

	var removed []string
	for i := keep; i < len(logs); i++ {
		if err := os.Remove(logs[i].path); err != nil {
			return removed, fmt.Errorf("failed to remove old log: %w", err)
		}
		removed = append(removed, logs[i].path)
	}
	return removed, nil
}
