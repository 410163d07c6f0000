/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestInitAndStructuredLoggingToFile verifies that the rotating file handler
// writes JSON records carrying the static and contextual attributes.
func TestInitAndStructuredLoggingToFile(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "vox.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Console: &console})
	t.Cleanup(func() { _ = Close() })

	l := WithOperation(WithComponent("testcomp"), "op1")
	l.Info("hello world", slog.String("k", "v"))

	if err := Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	if m["app"] != "voxscribe" {
		t.Fatalf("missing app attr: %v", m["app"])
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr")
	}
	if m["component"] != "testcomp" || m["op"] != "op1" || m["k"] != "v" {
		t.Fatalf("context attrs mismatch: %v", m)
	}
	if !strings.Contains(console.String(), "hello world") {
		t.Fatalf("console output missing record: %q", console.String())
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("VOX_LOG_LEVEL", "warn")
	t.Setenv("VOX_LOG_FORMAT", "json")
	t.Setenv("VOX_LOG_SOURCE", "true")
	t.Setenv("VOX_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("VOX_SOME_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestSetLevelFiltersConsole(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Console: &buf})
	L().Debug("hidden")
	SetLevel("debug")
	L().Debug("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "DBG shown") {
		t.Fatalf("debug record missing after SetLevel: %q", out)
	}
}

func TestConsoleHandlerAddsSource(t *testing.T) {
	var console bytes.Buffer
	Init(Options{Level: "info", Format: "console", AddSource: true, Console: &console})
	t.Cleanup(func() { _ = Close() })

	L().Info("with source")
	out := console.String()
	if !strings.Contains(out, "src=") || !strings.Contains(out, "logger_test.go:") {
		t.Fatalf("source location missing from %q", out)
	}

	console.Reset()
	Init(Options{Level: "info", Format: "console", Console: &console})
	L().Info("without source")
	if strings.Contains(console.String(), "src=") {
		t.Fatalf("source printed although AddSource is off: %q", console.String())
	}
}
