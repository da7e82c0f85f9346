package config

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"time"
)

// SlotWatcher keeps a slot catalog in sync with slots.yaml. Edits are picked
// up by polling; a file whose bytes did not change is never re-applied, and an
// edit that fails validation leaves the last good catalog in place.
type SlotWatcher struct {
	path     string
	interval time.Duration
	onUpdate func(*SlotsConfig)
	onError  func(error)

	checksum [sha256.Size]byte
}

func NewSlotWatcher(path string, interval time.Duration, onUpdate func(*SlotsConfig), onError func(error)) *SlotWatcher {
	if path == "" {
		path = "configs/slots.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &SlotWatcher{path: path, interval: interval, onUpdate: onUpdate, onError: onError}
}

// Start applies the current file synchronously and then polls in the
// background until ctx is done. Only the initial load error is returned.
func (w *SlotWatcher) Start(ctx context.Context) error {
	if _, err := w.poll(); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.poll(); err != nil {
					w.onError(err)
				}
			}
		}
	}()
	return nil
}

// poll reloads the file when its contents changed and reports whether a new
// catalog was applied.
func (w *SlotWatcher) poll() (bool, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return false, fmt.Errorf("read slots config: %w", err)
	}

	sum := sha256.Sum256(data)
	if sum == w.checksum {
		return false, nil
	}

	cfg, err := ParseSlotsConfig(data)
	if err != nil {
		return false, err
	}
	w.checksum = sum
	if w.onUpdate != nil {
		w.onUpdate(cfg)
	}
	return true, nil
}
