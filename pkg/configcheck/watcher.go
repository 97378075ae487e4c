package configcheck

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-validates a configuration file whenever it changes on disk.
type Watcher struct {
	path    string
	rules   []Rule
	logger  zerolog.Logger
	watcher *fsnotify.Watcher

	// Debounce is the quiet period after a change before re-validation.
	Debounce time.Duration
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, rules []Rule, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:     path,
		rules:    rules,
		logger:   logger,
		Debounce: 500 * time.Millisecond,
	}
}

// Watch starts watching the config file and invokes onChange with a fresh
// report after each change. Load failures are passed through as the error
// argument with a zero report. Watch returns once the watcher is running;
// it stops when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, onChange func(Report, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go w.processEvents(ctx, onChange)

	w.logger.Info().Str("path", w.path).Msg("Started watching config file")
	return nil
}

// Revalidate loads the file and runs the rule set once.
func (w *Watcher) Revalidate() (Report, error) {
	tree, err := LoadTree(w.path)
	if err != nil {
		return Report{}, err
	}
	return Validate(tree, w.rules), nil
}

func (w *Watcher) processEvents(ctx context.Context, onChange func(Report, error)) {
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug().
					Str("file", event.Name).
					Str("op", event.Op.String()).
					Msg("Config file changed")

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.Debounce, func() {
					onChange(w.Revalidate())
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
