package app

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StateWatcher reloads a state file into a session whenever the file is
// written, so a session can follow a state edited by another tool.
type StateWatcher struct {
	session  *Session
	path     string
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	doneCh   chan struct{}
	onReload func(error) // called after every reload attempt
}

// NewStateWatcher watches path for session. The directory is watched rather
// than the file so editors that replace the file are followed.
func NewStateWatcher(session *Session, path string) (*StateWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("app: watch state: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("app: watch state: %w", err)
	}
	return &StateWatcher{
		session: session,
		path:    abs,
		watcher: w,
	}, nil
}

// OnReload sets the callback invoked after each reload attempt, with the
// load error or nil. It runs on the watcher goroutine.
func (w *StateWatcher) OnReload(callback func(error)) {
	w.onReload = callback
}

// Start begins watching in a background goroutine.
func (w *StateWatcher) Start() {
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.watchLoop()
}

// Stop ends the watch and releases the watcher.
func (w *StateWatcher) Stop() error {
	if w.stopCh != nil {
		close(w.stopCh)
		<-w.doneCh
	}
	return w.watcher.Close()
}

func (w *StateWatcher) watchLoop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			err := w.session.LoadState(w.path)
			if err != nil {
				w.session.logger.Warn("state reload failed", zap.String("path", w.path), zap.Error(err))
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.session.logger.Warn("state watcher error", zap.Error(err))
		}
	}
}
