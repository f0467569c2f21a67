package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("config")

// debounce absorbs the write bursts editors produce on save.
const debounce = 200 * time.Millisecond

// Watch re-reads the config file whenever it changes and calls onChange with
// the fresh config. Invalid intermediate states are logged and skipped; the
// last good config stays in effect. Returns a stop function.
//
// The parent directory is watched rather than the file itself so
// rename-and-replace saves keep working.
func Watch(path string, onChange func(Config)) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	base := filepath.Base(path)
	done := make(chan struct{})

	go func() {
		var timer *time.Timer
		fire := make(chan struct{}, 1)

		for {
			select {
			case <-done:
				return
			case <-fire:
				cfg, err := Load(path)
				if err != nil {
					log.Warnf("reload %s skipped: %v", path, err)
					continue
				}
				log.Infof("config reloaded from %s", path)
				onChange(cfg)
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnf("watch %s: %v", path, err)
			}
		}
	}()

	stop := func() {
		close(done)
		w.Close()
	}
	return stop, nil
}
