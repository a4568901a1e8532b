package config

import (
	"github.com/fsnotify/fsnotify"
)

// WatchLogLevel watches path for writes and invokes onChange with the
// freshly-parsed Log.Level any time the file changes on disk, so an
// operator can turn up logging on a running kernel without a restart.
// Only the log-level key is treated as live; everything else in
// KernelConfig (table sizes, scheduler policy, PRNG seed) is a
// boot-time-only decision per spec.md §4.3, so this never re-parses
// those fields. Grounded on the teacher's use of fsnotify for config
// hot-reload (filewatch/filewatch.go).
func WatchLogLevel(path string, onChange func(level string)) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				c, err := Load(path)
				if err != nil {
					continue
				}
				onChange(c.Log.Level)
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return w, nil
}
