package crisis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
)

// maxCatalogSize bounds the catalog file.
const maxCatalogSize = 1 << 20

// FileRouter serves a catalog file and can watch it for changes. A reload
// that fails to parse keeps the previous catalog.
type FileRouter struct {
	path   string
	logger *zap.Logger

	mu      sync.RWMutex
	catalog *Catalog

	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}
}

// NewFileRouter loads the catalog at path.
func NewFileRouter(path string, logger *zap.Logger) (*FileRouter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving crisis catalog path: %w", err)
	}
	r := &FileRouter{path: abs, logger: logger}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the catalog file.
func (r *FileRouter) Reload() error {
	info, err := os.Stat(r.path)
	if err != nil {
		return fmt.Errorf("reading crisis catalog: %w", err)
	}
	if info.Size() > maxCatalogSize {
		return fmt.Errorf("crisis catalog %s exceeds %d bytes", r.path, maxCatalogSize)
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading crisis catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.catalog = c
	r.mu.Unlock()
	r.logger.Info("crisis catalog loaded", zap.String("path", r.path), zap.Int("regions", len(c.Regions)))
	return nil
}

// ResourcesFor implements Router.
func (r *FileRouter) ResourcesFor(ctx context.Context, region string, category detector.CrisisCategory) ([]Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	c := r.catalog
	r.mu.RUnlock()
	return StaticRouter{Catalog: c}.ResourcesFor(ctx, region, category)
}

// Watch reloads the catalog whenever the file is written, created or
// renamed into place. The parent directory is watched so editors that
// replace the file are handled. Watch returns once the watcher is
// running; call Close to stop it.
func (r *FileRouter) Watch(ctx context.Context) error {
	if r.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating catalog watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(r.path), err)
	}
	r.watcher = w
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(ctx)
	return nil
}

func (r *FileRouter) loop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.Warn("crisis catalog reload failed, keeping previous", zap.Error(err))
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("crisis catalog watcher error", zap.Error(err))
		}
	}
}

// Close stops watching. It is safe to call more than once.
func (r *FileRouter) Close() error {
	if r.watcher == nil {
		return nil
	}
	select {
	case <-r.stop:
		return nil
	default:
		close(r.stop)
	}
	err := r.watcher.Close()
	<-r.done
	return err
}
