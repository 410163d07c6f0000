/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voxscribe/internal/config"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	t.Setenv("VOX_CONFIG_DIR", t.TempDir())
	cfg := config.Defaults()
	cfg.Storage.DataDir = t.TempDir()
	return cfg
}

func runCLI(t *testing.T, cfg config.AppConfig, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), append([]string{"voxscribe"}, args...), cfg, "", &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Version(t *testing.T) {
	code, out, _ := runCLI(t, testConfig(t), "version")
	if code != 0 || !strings.HasPrefix(out, "VoxScribe ") {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
}

func TestRun_Greet(t *testing.T) {
	code, out, _ := runCLI(t, testConfig(t), "greet", "World")
	if code != 0 {
		t.Fatalf("greet exit code %d", code)
	}
	if strings.TrimSpace(out) != "Hello, World! You've been greeted from Go!" {
		t.Fatalf("greet output %q", out)
	}
	if code, _, _ := runCLI(t, testConfig(t), "greet"); code != 2 {
		t.Fatalf("greet without name: want exit 2, got %d", code)
	}
}

func TestRun_TranscriptsLifecycle(t *testing.T) {
	cfg := testConfig(t)

	if code, out, _ := runCLI(t, cfg, "transcripts", "list"); code != 0 || !strings.Contains(out, "No transcripts") {
		t.Fatalf("empty list: code=%d out=%q", code, out)
	}
	if code, out, _ := runCLI(t, cfg, "transcripts", "add", "hello", "there"); code != 0 || !strings.Contains(out, "Saved transcript 1") {
		t.Fatalf("add: code=%d out=%q", code, out)
	}
	if code, _, _ := runCLI(t, cfg, "transcripts", "add", "second"); code != 0 {
		t.Fatalf("second add failed: %d", code)
	}
	code, out, _ := runCLI(t, cfg, "transcripts", "list")
	if code != 0 || !strings.Contains(out, "hello there") || !strings.Contains(out, "second") {
		t.Fatalf("list: code=%d out=%q", code, out)
	}

	pdf := filepath.Join(t.TempDir(), "out.pdf")
	if code, _, errOut := runCLI(t, cfg, "transcripts", "export", pdf); code != 0 {
		t.Fatalf("export: code=%d err=%q", code, errOut)
	}
	b, err := os.ReadFile(pdf)
	if err != nil || !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Fatalf("export did not write a PDF: %v", err)
	}

	if code, _, _ := runCLI(t, cfg, "transcripts", "delete", "1"); code != 0 {
		t.Fatalf("delete existing: code=%d", code)
	}
	if code, _, errOut := runCLI(t, cfg, "transcripts", "delete", "1"); code != 1 || errOut == "" {
		t.Fatalf("delete missing: code=%d err=%q", code, errOut)
	}
	if code, _, _ := runCLI(t, cfg, "transcripts", "delete", "abc"); code != 2 {
		t.Fatalf("delete bad id: want 2, got %d", code)
	}
	if code, out, _ := runCLI(t, cfg, "transcripts", "clear"); code != 0 || !strings.Contains(out, "Deleted 1 transcripts") {
		t.Fatalf("clear: code=%d out=%q", code, out)
	}
}

func TestRun_TranscriptsAddBlank(t *testing.T) {
	if code, _, errOut := runCLI(t, testConfig(t), "transcripts", "add", "   "); code != 1 || errOut == "" {
		t.Fatalf("blank add: code=%d err=%q", code, errOut)
	}
}

func TestRun_SyncDisabled(t *testing.T) {
	code, _, errOut := runCLI(t, testConfig(t), "transcripts", "sync")
	if code != 1 || !strings.Contains(errOut, "not configured") {
		t.Fatalf("sync without dsn: code=%d err=%q", code, errOut)
	}
}

func TestRun_UnknownFlag(t *testing.T) {
	if code, _, _ := runCLI(t, testConfig(t), "--bogus"); code != 2 {
		t.Fatalf("unknown flag: want 2, got %d", code)
	}
}

type memSecrets map[string]string

func (m memSecrets) Get(service, key string) (string, error) { return m[service+"/"+key], nil }
func (m memSecrets) Set(service, key, value string) error    { m[service+"/"+key] = value; return nil }
func (m memSecrets) Delete(service, key string) error        { delete(m, service+"/"+key); return nil }

func TestRun_DeepgramKey(t *testing.T) {
	mem := memSecrets{}
	prev := config.SetSecretStore(mem)
	t.Cleanup(func() { config.SetSecretStore(prev) })
	t.Setenv(config.EnvDeepgramKey, "")
	cfg := testConfig(t)

	if code, out, _ := runCLI(t, cfg, "deepgram-key", "dg-123"); code != 0 || !strings.Contains(out, "stored") {
		t.Fatalf("store key: code=%d out=%q", code, out)
	}
	if got := config.DeepgramKey(); got != "dg-123" {
		t.Fatalf("DeepgramKey() = %q", got)
	}
	if code, out, _ := runCLI(t, cfg, "deepgram-key"); code != 0 || !strings.Contains(out, "removed") {
		t.Fatalf("remove key: code=%d out=%q", code, out)
	}
	if got := config.DeepgramKey(); got != "" {
		t.Fatalf("key still present: %q", got)
	}
}
