package engine

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/wardenhq/warden/internal/types"
)

// Watcher ingests signal files dropped into a directory. Tools write one
// JSON-encoded ErrorSignal per *.json file; the watcher consumes and deletes
// each file.
type Watcher struct {
	dir     string
	engine  *Engine
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a drop-directory watcher feeding the engine.
func NewWatcher(dir string, engine *Engine) *Watcher {
	return &Watcher{
		dir:    dir,
		engine: engine,
		done:   make(chan struct{}),
	}
}

// Start begins watching. Signal files already present in the directory are
// drained first, then new files are processed as they appear. Call Stop to
// clean up.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}

	w.drainExisting(ctx)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop(ctx)
	log.Printf("watching %s for signal files", w.dir)
	return nil
}

// Stop shuts down the watcher.
func (w *Watcher) Stop() {
	if w.watcher != nil {
		w.watcher.Close()
	}
	<-w.done
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case evt, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Write matters as much as Create: a tool may create the file
			// empty and fill it in a second syscall.
			if evt.Op&(fsnotify.Create|fsnotify.Write) != 0 && strings.HasSuffix(evt.Name, ".json") {
				w.processFile(ctx, evt.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: watcher error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) drainExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			w.processFile(ctx, filepath.Join(w.dir, entry.Name()))
		}
	}
}

func (w *Watcher) processFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another process
	}

	// Decode before deleting: a file that does not parse yet may still be
	// mid-write, and the writer's next Write event retries it.
	var sig types.ErrorSignal
	if err := json.Unmarshal(data, &sig); err != nil {
		log.Printf("Warning: signal file %s does not parse yet, leaving in place: %v", path, err)
		return
	}
	os.Remove(path)
	if sig.Source == "" {
		sig.Source = types.SourceTool
	}

	if _, err := w.engine.Process(ctx, sig); err != nil {
		log.Printf("Warning: failed to process signal from %s: %v", path, err)
	}
}
