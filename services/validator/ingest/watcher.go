// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces the burst of write events most editors and
// copy tools emit per file into a single ingestion.
const debounceWindow = 500 * time.Millisecond

// Watcher watches a directory of framework dumps and re-ingests a
// dump whenever its file is written. Only .yaml and .yml files are
// considered.
//
// Thread Safety: Start should be called once; Stop is safe to call
// multiple times.
type Watcher struct {
	dir      string
	ingestor *Ingestor
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher for the given dump directory.
func NewWatcher(dir string, ingestor *Ingestor, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      dir,
		ingestor: ingestor,
		watcher:  fsw,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Start begins watching. Blocks until the context is cancelled;
// should be run in a goroutine.
func (w *Watcher) Start(ctx context.Context) {
	if err := w.watcher.Add(w.dir); err != nil {
		w.logger.Warn("failed to watch dump directory", "dir", w.dir, "error", err)
		return
	}
	w.logger.Info("watching framework dumps", "dir", w.dir)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("dump watcher error", "error", err)

		case <-ctx.Done():
			w.logger.Debug("dump watcher stopping")
			return
		}
	}
}

// handleEvent debounces per path: the ingestion fires once the file
// has been quiet for the debounce window.
func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".yaml" && ext != ".yml" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(debounceWindow)
		return
	}
	path := event.Name
	w.pending[path] = time.AfterFunc(debounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if _, err := w.ingestor.IngestFile(ctx, path); err != nil {
			w.logger.Error("auto-ingestion failed", "path", path, "error", err)
		}
	})
}

// Stop stops the watcher and releases resources. Safe to call
// multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}
