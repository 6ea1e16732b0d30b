package server

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeKind classifies a watched file change.
type ChangeKind int

const (
	// ChangePost is a markdown file under the content directory.
	ChangePost ChangeKind = iota
	// ChangeStatic is any file under the static directory.
	ChangeStatic
)

// Watcher watches the content and static directories and reports changes.
type Watcher struct {
	watcher    *fsnotify.Watcher
	contentDir string
	staticDir  string
	onChange   func(kind ChangeKind, filePath string) error
	done       chan struct{}
	logger     *zap.Logger
}

// NewWatcher creates a watcher over contentDir and, when it exists,
// staticDir. onChange receives paths relative to the watched directory.
func NewWatcher(contentDir, staticDir string, onChange func(ChangeKind, string) error, logger *zap.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		watcher:    fsWatcher,
		contentDir: contentDir,
		staticDir:  staticDir,
		onChange:   onChange,
		done:       make(chan struct{}),
		logger:     logger,
	}

	if err := w.addDirectoryRecursive(contentDir); err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if staticDir != "" {
		if _, err := os.Stat(staticDir); err == nil {
			if err := w.addDirectoryRecursive(staticDir); err != nil {
				fsWatcher.Close()
				return nil, err
			}
		}
	}

	return w, nil
}

// addDirectoryRecursive adds a directory and all its subdirectories to the watcher.
func (w *Watcher) addDirectoryRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watching directory", zap.String("dir", path))
		return nil
	})
}

// classify maps an event path to its kind and relative path. ok is false
// for files nobody cares about.
func (w *Watcher) classify(path string) (ChangeKind, string, bool) {
	if w.staticDir != "" {
		if rel, err := filepath.Rel(w.staticDir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return ChangeStatic, filepath.ToSlash(rel), true
		}
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return 0, "", false
	}
	rel, err := filepath.Rel(w.contentDir, path)
	if err != nil {
		rel = path
	}
	return ChangePost, filepath.ToSlash(rel), true
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addDirectoryRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}

	kind, rel, ok := w.classify(event.Name)
	if !ok {
		return
	}
	w.logger.Debug("file changed", zap.String("file", rel), zap.String("op", event.Op.String()))
	if err := w.onChange(kind, rel); err != nil {
		w.logger.Warn("reload failed", zap.String("file", rel), zap.Error(err))
	}
}

// Start begins watching for file changes.
func (w *Watcher) Start() {
	go func() {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				w.handle(event)

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))

			case <-w.done:
				return
			}
		}
	}()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.watcher.Close()
}
