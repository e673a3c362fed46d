package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// PolicyReloader receives the named policies each time the policy file
// changes. An error keeps the previous policies in force.
type PolicyReloader func(policies map[string][]string) error

// WatchPolicyFile calls reload whenever the file at path is written or
// replaced, until ctx is done. The directory is watched rather than the file
// so editors that save by rename are still seen. Bootstrap grants and the
// root id are read at startup only.
func WatchPolicyFile(ctx context.Context, path string, logger logrus.FieldLogger, reload PolicyReloader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch policy file: %w", err)
	}

	log := logger.WithField("policy_file", target)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				reloadPolicies(target, log, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Policy watcher error")
			}
		}
	}()
	return nil
}

func reloadPolicies(path string, log logrus.FieldLogger, reload PolicyReloader) {
	// truncated mid-save; the write that follows triggers another event
	if info, err := os.Stat(path); err == nil && info.Size() == 0 {
		return
	}

	file, err := readPolicyFile(path)
	if err != nil {
		// a rename leaves the path briefly missing
		log.WithError(err).Warn("Policy file not reloaded")
		return
	}
	if err := reload(file.Policies); err != nil {
		log.WithError(err).Error("Policy file rejected, keeping previous policies")
		return
	}
	log.WithField("policies", len(file.Policies)).Info("Policies reloaded")
}
