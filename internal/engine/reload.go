package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloader watches the rules file for changes and triggers hot-reload.
type Reloader struct {
	watcher *fsnotify.Watcher
	gateway *Gateway
	path    string
}

// NewReloader creates a file watcher over the gateway's rules file.
// Returns an error when the file does not exist or cannot be watched.
func NewReloader(g *Gateway) (*Reloader, error) {
	if g.cfg.RulesPath == "" {
		return nil, fmt.Errorf("engine: no rules file to watch")
	}
	if _, err := os.Stat(g.cfg.RulesPath); err != nil {
		return nil, fmt.Errorf("engine: stat rules file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("engine: create file watcher: %w", err)
	}
	if err := watcher.Add(g.cfg.RulesPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("engine: watch %q: %w", g.cfg.RulesPath, err)
	}

	return &Reloader{watcher: watcher, gateway: g, path: g.cfg.RulesPath}, nil
}

// Run watches for file changes and reloads the rules. Blocks until ctx
// is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	// Debounce: wait 500ms after the last write before reloading
	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					if err := r.gateway.ReloadRules(); err != nil {
						fmt.Fprintf(os.Stderr, "hot-reload failed: %v\n", err)
					} else {
						fmt.Fprintf(os.Stderr, "hot-reload: rules reloaded\n")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watcher error: %v\n", err)
		}
	}
}
