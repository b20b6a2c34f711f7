// Package watcher reloads credentials when the file on disk changes, so a
// re-login in the Kiro IDE reaches the gateway without a restart.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// debounce coalesces the burst of events an editor-style atomic save emits.
const debounce = 500 * time.Millisecond

// Reloader is what the watcher drives, typically the auth manager.
type Reloader interface {
	Reload()
}

// WatchCredentials watches path and calls target.Reload after changes
// settle. The parent directory is watched rather than the file itself
// because saves that replace the file drop the inode-level watch.
func WatchCredentials(ctx context.Context, path string, target Reloader) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}
	log.Infof("watching credentials file: %s", path)

	go func() {
		defer w.Close()
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			case <-timerC:
				log.Info("credentials file changed, reloading")
				target.Reload()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.WithField("error", err).Warn("credentials watcher error")
			}
		}
	}()
	return nil
}
