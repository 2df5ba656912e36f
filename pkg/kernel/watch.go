// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher watches the configuration manifest directory and the MCP
// server-registry file for external edits, logging what changed. Actually
// reconnecting MCP servers on registry-file edits stays pkg/mcp.Manager's
// job (done once at Start); this watch exists so an operator editing
// either file on disk is visible in the logs rather than silently ignored,
// per SPEC_FULL.md §4.12's fsnotify entry.
type fileWatcher struct {
	w      *fsnotify.Watcher
	logger *slog.Logger
	done   chan struct{}
}

func newFileWatcher(logger *slog.Logger, configDir, registryPath string) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(configDir); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(registryPath); err != nil {
		logger.Debug("kernel: registry file not yet present to watch", "path", registryPath, "error", err)
	}

	fw := &fileWatcher{w: w, logger: logger, done: make(chan struct{})}
	go fw.loop()
	return fw, nil
}

func (fw *fileWatcher) loop() {
	for {
		select {
		case event, ok := <-fw.w.Events:
			if !ok {
				return
			}
			fw.logger.Debug("kernel: watched path changed", "path", event.Name, "op", event.Op.String())
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("kernel: configuration watch error", "error", err)
		case <-fw.done:
			return
		}
	}
}

func (fw *fileWatcher) Close() {
	close(fw.done)
	fw.w.Close()
}
