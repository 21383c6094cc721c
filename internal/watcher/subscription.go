package watcher

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"chromascale/internal/logging"
)

// Subscription delivers creation events for regular files in a single
// directory. Subdirectories are not watched.
type Subscription struct {
	dir      string
	watcher  *fsnotify.Watcher
	onCreate func(path string)
	logger   *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Subscribe starts watching dir. onCreate runs on the event goroutine and must
// not block; Debouncer.OnFileCreated only takes a short lock.
func Subscribe(dir string, onCreate func(path string), logger *slog.Logger) (*Subscription, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	s := &Subscription{
		dir:      dir,
		watcher:  w,
		onCreate: onCreate,
		logger:   logging.NewComponentLogger(logger, "watcher"),
		done:     make(chan struct{}),
	}
	go s.loop()
	s.logger.Info("watching directory", logging.String(logging.FieldPath, dir))
	return s, nil
}

func (s *Subscription) loop() {
	defer close(s.done)
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			info, err := os.Stat(event.Name)
			if err != nil || info.IsDir() {
				continue
			}
			s.onCreate(event.Name)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(s.logger, "filesystem watch error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldPath, s.dir),
				logging.String(logging.FieldImpact, "some file arrivals may be missed"),
				logging.String(logging.FieldErrorHint, "re-copy affected files or restart the watcher"),
			)
		}
	}
}

// Close stops the watch and waits for the event goroutine to exit.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.watcher.Close()
		<-s.done
	})
	return s.closeErr
}
