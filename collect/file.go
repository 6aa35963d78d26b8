package collect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"hostsentry/core"
)

// FileCollector watches a directory tree for modifications and emits a
// file_changed event when a file's content hash differs from the last
// recorded one. New files are hashed and remembered without alerting.
type FileCollector struct {
	dir     string
	log     *zap.SugaredLogger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	hashes  map[string]string
	pending map[string]bool
}

func NewFileCollector(dir string, log *zap.SugaredLogger) (*FileCollector, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	c := &FileCollector{
		dir:     dir,
		log:     log,
		watcher: watcher,
		hashes:  map[string]string{},
		pending: map[string]bool{},
	}

	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		if hash, err := hashFile(path); err == nil {
			c.hashes[path] = hash
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, err
	}

	go c.watch()
	return c, nil
}

func (c *FileCollector) Name() string { return string(core.SourceFileCollector) }

func (c *FileCollector) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if ev.Op&fsnotify.Create != 0 {
					c.watcher.Add(ev.Name)
				}
				continue
			}
			c.mu.Lock()
			c.pending[ev.Name] = true
			c.mu.Unlock()
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.log.Warnw("File watcher error", "error", err)
		}
	}
}

func (c *FileCollector) Collect(ctx context.Context) ([]*core.Event, error) {
	c.mu.Lock()
	changed := c.pending
	c.pending = map[string]bool{}
	c.mu.Unlock()

	var events []*core.Event
	for path := range changed {
		newHash, err := hashFile(path)
		if err != nil {
			continue // deleted or unreadable since the notification
		}
		c.mu.Lock()
		oldHash, known := c.hashes[path]
		c.hashes[path] = newHash
		c.mu.Unlock()
		if !known || oldHash == newHash {
			continue
		}
		events = append(events, core.NewEvent(core.SourceFileCollector, core.EventFileChanged, map[string]interface{}{
			"path":       path,
			"hash_match": false,
			"old_hash":   oldHash[:16],
			"new_hash":   newHash[:16],
		}))
	}
	return events, nil
}

func (c *FileCollector) Close() error {
	return c.watcher.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
