package config

import (
	"context"
	"fmt"
	"os"
	"time"
)

const (
	defaultSpotsPath     = "configs/spots.yaml"
	defaultWatchInterval = 30 * time.Second
)

// fileStamp identifies one revision of a file on disk.
type fileStamp struct {
	mod  time.Time
	size int64
}

func (f fileStamp) same(o fileStamp) bool {
	return f.mod.Equal(o.mod) && f.size == o.size
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{mod: info.ModTime(), size: info.Size()}, nil
}

// Watch loads path once, hands the result to onUpdate and then polls the file every
// interval. A changed mtime or size triggers a reload; revisions that fail to load
// go to onError and the previous value stays in effect. Polling stops with ctx.
func Watch[T any](ctx context.Context, path string, interval time.Duration, load func(string) (T, error), onUpdate func(T), onError func(error)) error {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if onUpdate == nil {
		onUpdate = func(T) {}
	}
	if onError == nil {
		onError = func(error) {}
	}

	last, err := stampOf(path)
	if err != nil {
		return err
	}
	v, err := load(path)
	if err != nil {
		return err
	}
	onUpdate(v)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		missing := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cur, err := stampOf(path)
			if err != nil {
				// Report a missing file once, not on every tick.
				if !missing {
					onError(fmt.Errorf("stat %s: %w", path, err))
				}
				missing = true
				continue
			}
			missing = false
			if cur.same(last) {
				continue
			}
			// A rejected revision is not retried until the file changes again.
			last = cur

			v, err := load(path)
			if err != nil {
				onError(err)
				continue
			}
			onUpdate(v)
		}
	}()
	return nil
}

// WatchSpots keeps the spots file applied through onUpdate.
func WatchSpots(ctx context.Context, path string, interval time.Duration, onUpdate func(*SpotsConfig), onError func(error)) error {
	if path == "" {
		path = defaultSpotsPath
	}
	return Watch(ctx, path, interval, LoadSpotsConfig, onUpdate, onError)
}
