package prompt

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// File serves a prompt loaded from disk and reloads it whenever the file
// changes. A failed or empty reload keeps the last good prompt.
type File struct {
	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.RWMutex
	current string
}

// NewFile loads path and starts watching it. Close stops the watcher.
func NewFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f := &File{
		path:   filepath.Clean(path),
		logger: logger.With("component", "prompt", "path", path),
		done:   make(chan struct{}),
	}

	text, err := f.read()
	if err != nil {
		return nil, err
	}
	f.current = text

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating prompt watcher: %w", err)
	}

	// Watch the directory so editors that save by rename are picked up.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching prompt dir: %w", err)
	}
	f.watcher = watcher

	f.wg.Add(1)
	go f.watch()

	return f, nil
}

// Prompt returns the most recently loaded prompt.
func (f *File) Prompt() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Close stops watching the file.
func (f *File) Close() error {
	close(f.done)
	err := f.watcher.Close()
	f.wg.Wait()
	return err
}

func (f *File) read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("prompt file %s is empty", f.path)
	}
	return text, nil
}

func (f *File) watch() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			f.reload()
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error("prompt watcher error", "error", err)
		}
	}
}

func (f *File) reload() {
	text, err := f.read()
	if err != nil {
		f.logger.Warn("keeping previous prompt", "error", err)
		return
	}

	f.mu.Lock()
	f.current = text
	f.mu.Unlock()
	f.logger.Info("system prompt reloaded")
}
