// Package watch drives a filesystem watcher that triggers rebuilds,
// coalescing filesystem events that arrive while a build is already in
// progress rather than queuing one rebuild per event. Grounded on
// src/watch.rs (the watcher/ignore-list shape) and src/debouncer.rs
// (the busy-debounce semantics).
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/trunkrs/trunk/internal/logx"
	"github.com/trunkrs/trunk/internal/trunkerr"
)

// blacklist lists path segments ignored regardless of configuration.
var blacklist = []string{".git"}

// Watcher wraps an fsnotify.Watcher with a dynamically-updatable
// ignore list (cargo's target directory is added to it once known) and
// busy-debounced rebuild triggering.
type Watcher struct {
	fsw     *fsnotify.Watcher
	log     *logx.Logger
	mu      sync.RWMutex
	ignored []string
}

// New creates a Watcher recursively watching every directory under
// each of paths.
func New(paths []string, ignored []string, log *logx.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, trunkerr.Wrap(trunkerr.ReasonFsNotExist, "creating watcher", err)
	}
	w := &Watcher{fsw: fsw, log: log, ignored: append([]string(nil), ignored...)}
	for _, p := range paths {
		if err := w.addRecursive(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.isIgnored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Ignore adds path to the dynamic ignore list (used to exclude
// cargo's target directory once the Rust pipeline reports it).
func (w *Watcher) Ignore(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, p := range w.ignored {
		if p == path {
			return
		}
	}
	w.ignored = append(w.ignored, path)
	if w.log != nil {
		w.log.Debug("watcher ignoring %s", path)
	}
}

func (w *Watcher) isIgnored(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		for _, seg := range blacklist {
			if part == seg {
				return true
			}
		}
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, p := range w.ignored {
		if p == path || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Close releases the underlying OS watch handles.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run watches for filesystem events until ctx is canceled, invoking
// rebuild at most once per burst of events: while rebuild is running,
// further events coalesce into a single pending trigger fired as soon
// as the running rebuild completes.
func (w *Watcher) Run(ctx context.Context, rebuild func(ctx context.Context)) {
	busy := false
	pending := false
	done := make(chan struct{})

	trigger := func() {
		if busy {
			pending = true
			return
		}
		busy = true
		go func() {
			rebuild(ctx)
			done <- struct{}{}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.isIgnored(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := statIsDir(ev.Name); err == nil && info {
					_ = w.fsw.Add(ev.Name)
				}
			}
			trigger()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Error("watch error: %v", err)
			}
		case <-done:
			busy = false
			if pending {
				pending = false
				trigger()
			}
		}
	}
}

func statIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
