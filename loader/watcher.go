package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// IngestFunc replaces the corpus with text and returns the chunk count.
type IngestFunc func(ctx context.Context, text string) (int, error)

type WatcherConfig struct {
	SourceDir  string
	ArchiveDir string
	BadDir     string
	// MonitoringTime is how long a file must stay unchanged before it is ingested.
	MonitoringTime time.Duration
	PollInterval   time.Duration
}

type fileState struct {
	firstSeen time.Time
	size      int64
	modTime   time.Time
}

// Watcher polls a drop folder and ingests every file that has settled.
// Each ingest replaces the corpus, so with several settled files the most
// recently modified one ends up live.
type Watcher struct {
	cfg       WatcherConfig
	converter *Converter
	ingest    IngestFunc
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]fileState
}

func NewWatcher(cfg WatcherConfig, converter *Converter, ingest IngestFunc, logger *slog.Logger) (*Watcher, error) {
	if cfg.SourceDir == "" {
		return nil, errors.New("watcher: source directory is required")
	}
	if cfg.ArchiveDir == "" {
		cfg.ArchiveDir = filepath.Join(cfg.SourceDir, "archive")
	}
	if cfg.BadDir == "" {
		cfg.BadDir = filepath.Join(cfg.SourceDir, "bad")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := createDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:       cfg,
		converter: converter,
		ingest:    ingest,
		logger:    logger.With("component", "watcher"),
		seen:      make(map[string]fileState),
	}, nil
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("start monitoring folder", "dir", w.cfg.SourceDir)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	defer w.logger.Info("file watcher stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, path := range w.poll(now) {
				if ctx.Err() != nil {
					return
				}
				w.process(ctx, path)
			}
		}
	}
}

// poll updates tracking state and returns the files that have been unchanged
// for at least MonitoringTime, oldest modification first.
func (w *Watcher) poll(now time.Time) []string {
	entries, err := os.ReadDir(w.cfg.SourceDir)
	if err != nil {
		w.logger.Error("error while reading source directory", "error", err)
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make(map[string]bool, len(entries))
	var ready []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(w.cfg.SourceDir, entry.Name())
		current[path] = true

		st, ok := w.seen[path]
		if !ok || st.size != info.Size() || !st.modTime.Equal(info.ModTime()) {
			if !ok {
				w.logger.Info("new file detected", "file", path)
			}
			w.seen[path] = fileState{firstSeen: now, size: info.Size(), modTime: info.ModTime()}
			continue
		}
		if now.Sub(st.firstSeen) >= w.cfg.MonitoringTime {
			ready = append(ready, path)
		}
	}

	for path := range w.seen {
		if !current[path] {
			delete(w.seen, path)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return w.seen[ready[i]].modTime.Before(w.seen[ready[j]].modTime)
	})
	return ready
}

func (w *Watcher) process(ctx context.Context, path string) {
	w.logger.Info("processing file", "file", path)
	failed := false

	text, err := w.converter.ToText(ctx, path)
	if err == nil {
		var n int
		n, err = w.ingest(ctx, text)
		if err == nil {
			w.logger.Info("file ingested", "file", path, "chunks", n)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			// leave the file in place for the next run
			return
		}
		w.logger.Error("error processing file", "file", path, "error", err)
		failed = true
	}

	dest, err := w.MoveToArchive(path, failed)
	if err != nil {
		w.logger.Error("error moving file", "file", path, "error", err)
	} else {
		w.logger.Info("file moved", "dest", dest)
	}

	w.mu.Lock()
	delete(w.seen, path)
	w.mu.Unlock()
}

// MoveToArchive moves filePath into a dated subdirectory of the archive
// directory, or of the bad directory when failed is set. Name collisions get
// a numeric suffix.
func (w *Watcher) MoveToArchive(filePath string, failed bool) (string, error) {
	root := w.cfg.ArchiveDir
	if failed {
		root = w.cfg.BadDir
	}

	destDir := filepath.Join(root, time.Now().Format("2006-01-02"))
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("error creating directory: %w", err)
	}

	destPath := filepath.Join(destDir, filepath.Base(filePath))
	ext := filepath.Ext(destPath)
	baseName := strings.TrimSuffix(filepath.Base(destPath), ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(destPath); os.IsNotExist(err) {
			break
		}
		destPath = filepath.Join(destDir, fmt.Sprintf("%s_%d%s", baseName, counter, ext))
	}

	if err := os.Rename(filePath, destPath); err == nil {
		return destPath, nil
	}
	// rename fails across filesystems
	if err := copyFile(filePath, destPath); err != nil {
		return "", err
	}
	return destPath, os.Remove(filePath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func createDirectories(dirs ...string) error {
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
