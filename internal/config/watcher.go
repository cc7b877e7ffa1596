package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/evmts/smithers/pkg/types"
)

// Watcher watches the global and project config directories for changes to
// smithers.json/smithers.jsonc and reloads the merged configuration on
// write, handing the fresh result to onReload.
type Watcher struct {
	fsw       *fsnotify.Watcher
	directory string
	onReload  func(*types.Config)
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	mu        sync.Mutex
}

// NewWatcher watches the global config directory and, if directory is
// non-empty, its .smithers project config directory as well. Missing
// directories are skipped rather than erroring, since a project may not
// have a .smithers directory yet.
func NewWatcher(directory string, onReload func(*types.Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := []string{GetPaths().Config}
	if directory != "" {
		dirs = append(dirs, filepath.Join(directory, ".smithers"))
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	return &Watcher{
		fsw:       fsw,
		directory: directory,
		onReload:  onReload,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching for config file changes in the background.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && isConfigFile(ev.Name) {
				cfg, err := Load(w.directory)
				if err == nil && w.onReload != nil {
					w.onReload(cfg)
				}
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func isConfigFile(name string) bool {
	switch filepath.Base(name) {
	case "smithers.json", "smithers.jsonc":
		return true
	default:
		return false
	}
}

// Stop stops the watcher and releases its underlying fsnotify handle.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	if started {
		<-w.doneCh
	}
	return w.fsw.Close()
}
