package host

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Replayer feeds a recorded JSONL trace into a Page. Blank lines and lines
// starting with '#' are skipped; malformed lines are logged and skipped.
//
// With Follow set the file is tailed: after reaching EOF the replayer waits
// for fsnotify write events and keeps reading until ctx is cancelled or the
// file is removed.
type Replayer struct {
	Path   string
	Follow bool
	Logger *slog.Logger
}

// Run replays the trace. It returns nil at EOF (or on cancellation when
// following).
func (r *Replayer) Run(ctx context.Context, page *Page) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	var watcher *fsnotify.Watcher
	if r.Follow {
		watcher, err = fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("creating trace watcher: %w", err)
		}
		defer watcher.Close()
		if err := watcher.Add(r.Path); err != nil {
			return fmt.Errorf("watching trace: %w", err)
		}
	}

	reader := bufio.NewReader(f)
	var (
		pending []byte
		lineNo  int
	)
	for {
		if ctx.Err() != nil {
			return nil
		}
		chunk, err := reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		if err == nil {
			lineNo++
			r.apply(ctx, page, pending, lineNo, logger)
			pending = pending[:0]
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading trace: %w", err)
		}

		if !r.Follow {
			if len(bytes.TrimSpace(pending)) > 0 {
				lineNo++
				r.apply(ctx, page, pending, lineNo, logger)
			}
			logger.Info("trace replay finished", slog.String("path", r.Path), slog.Int("lines", lineNo))
			return nil
		}

		// Partial line stays in pending until the writer finishes it.
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				logger.Info("trace file went away, stopping", slog.String("path", r.Path))
				return nil
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("trace watcher error", slog.String("error", werr.Error()))
		}
	}
}

func (r *Replayer) apply(ctx context.Context, page *Page, raw []byte, lineNo int, logger *slog.Logger) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || line[0] == '#' {
		return
	}
	ev, err := DecodeEvent(line)
	if err != nil {
		logger.Warn("skipping trace line", slog.Int("line", lineNo), slog.String("error", err.Error()))
		return
	}
	if err := page.Apply(ctx, ev); err != nil {
		logger.Warn("trace event rejected", slog.Int("line", lineNo), slog.String("error", err.Error()))
	}
}
