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
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/toolregistry"
)

// builtinCatalog is the set of local/service tools a manifest may name.
// Per-tool business logic beyond these three is explicitly out of scope
// (spec.md's Non-goals exclude "per-tool business logic (DNS lookup, HTTP
// probing, etc.)" for external collaborators); read_file and fetch_url
// (KindLocal) and list_configurations (KindService) exist to exercise
// C6's KindLocal/KindService routing end-to-end, the first two adapted from the teacher's
// pkg/tools.ReadFileTool and pkg/tools.WebRequestTool core logic rather
// than their config/Tool-interface plumbing, which belongs to a config
// surface this module doesn't carry.
func (k *Kernel) builtinCatalog() map[string]builtinTool {
	return map[string]builtinTool{
		"read_file": {
			def: toolregistry.ToolDefinition{
				Name:        "read_file",
				Description: "Read the contents of a file, optionally restricted to a line range.",
				Kind:        toolregistry.KindLocal,
				ApprovalPolicy: toolregistry.ApprovalAuto,
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"path":       map[string]interface{}{"type": "string"},
						"start_line": map[string]interface{}{"type": "number"},
						"end_line":   map[string]interface{}{"type": "number"},
					},
					"required": []interface{}{"path"},
				},
			},
			handler: readFileHandler,
		},
		"fetch_url": {
			def: toolregistry.ToolDefinition{
				Name:        "fetch_url",
				Description: "Fetch a URL over HTTP GET and return its body as text.",
				Kind:        toolregistry.KindLocal,
				ApprovalPolicy: toolregistry.ApprovalRequired,
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"url": map[string]interface{}{"type": "string"},
					},
					"required": []interface{}{"url"},
				},
			},
			handler: fetchURLHandler,
		},
		"list_configurations": {
			def: toolregistry.ToolDefinition{
				Name:           "list_configurations",
				Description:    "List the names of configurations this runtime can be loaded with.",
				Kind:           toolregistry.KindService,
				ApprovalPolicy: toolregistry.ApprovalNone,
				Parameters:     map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			},
			handler: k.listConfigurationsHandler,
		},
	}
}

// maxReadFileSize mirrors the teacher's ReadFileTool default cap.
const maxReadFileSize = 10 * 1024 * 1024

func readFileHandler(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path parameter is required")
	}
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("path must not contain '..'")
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(".", full)
	}

	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > maxReadFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), maxReadFileSize)
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(content), "\n")
	start, end := 1, len(lines)
	if v, ok := args["start_line"].(float64); ok && int(v) >= 1 {
		start = int(v)
	}
	if v, ok := args["end_line"].(float64); ok && int(v) <= len(lines) && int(v) >= start {
		end = int(v)
	}
	if start > len(lines) {
		start = len(lines)
	}

	var b strings.Builder
	for i := start; i <= end && i <= len(lines); i++ {
		fmt.Fprintf(&b, "%d: %s\n", i, lines[i-1])
	}

	return map[string]interface{}{
		"llm_content":     b.String(),
		"display_content": fmt.Sprintf("read %s (lines %d-%d)", path, start, end),
	}, nil
}

const maxFetchBody = 256 * 1024

var fetchClient = &http.Client{Timeout: 15 * time.Second}

func fetchURLHandler(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("url parameter is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("url must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	return map[string]interface{}{
		"llm_content":     string(body),
		"display_content": fmt.Sprintf("fetched %s (%d bytes, status %d)", url, len(body), resp.StatusCode),
	}, nil
}

// listConfigurationsHandler is bound through the Capability interface
// (§9) rather than closing directly over kernel internals, so the tool
// constructor only ever sees the narrow get_tool/call_tool/
// list_configurations/notify surface.
func (k *Kernel) listConfigurationsHandler(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	names, err := k.ListConfigurations()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"llm_content":     strings.Join(names, ", "),
		"display_content": fmt.Sprintf("%d configuration(s) available", len(names)),
		"configurations":  names,
	}, nil
}
