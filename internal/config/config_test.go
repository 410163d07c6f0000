/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type memSecrets map[string]string

func (m memSecrets) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}
func (m memSecrets) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memSecrets) Delete(service, key string) error     { delete(m, service+"/"+key); return nil }

func useTempConfig(t *testing.T) (string, memSecrets) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	t.Setenv(EnvCloudDSN, "")
	mem := memSecrets{}
	prev := SetSecretStore(mem)
	t.Cleanup(func() { SetSecretStore(prev) })
	return dir, mem
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	useTempConfig(t)
	cfg, dsn, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if dsn != "" {
		t.Fatalf("expected empty dsn, got %q", dsn)
	}
	if cfg.Shell.Scheme != "voxscribe" || cfg.Shell.MainWindow != "main" {
		t.Fatalf("unexpected shell defaults: %+v", cfg.Shell)
	}
}

func TestSaveThenLoadRoundTripsFileAndSecret(t *testing.T) {
	dir, mem := useTempConfig(t)
	cfg := Defaults()
	cfg.Shell.Title = "Vox Dev"
	cfg.Cloud.Enabled = true
	if err := Save(cfg, "postgres://u:p@localhost/vox"); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if mem[KeyringService+"/"+keyCloudDSN] == "" {
		t.Fatalf("dsn not stored in keychain")
	}
	got, dsn, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Shell.Title != "Vox Dev" || !got.Cloud.Enabled {
		t.Fatalf("file values not loaded: %+v", got)
	}
	if dsn != "postgres://u:p@localhost/vox" {
		t.Fatalf("dsn = %q", dsn)
	}
}

func TestEnvDSNWinsOverKeychain(t *testing.T) {
	_, mem := useTempConfig(t)
	mem[KeyringService+"/"+keyCloudDSN] = "from-keychain"
	t.Setenv(EnvCloudDSN, "from-env")
	_, dsn, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if dsn != "from-env" {
		t.Fatalf("dsn = %q, want from-env", dsn)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	useTempConfig(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/vox.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/vox.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestEnvOverridesSchemeAndTelemetry(t *testing.T) {
	useTempConfig(t)
	t.Setenv(EnvScheme, "VoxDev")
	t.Setenv(EnvTelemetryOptIn, "yes")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Shell.Scheme != "voxdev" {
		t.Fatalf("scheme = %q, want voxdev", cfg.Shell.Scheme)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("telemetry opt-in not applied")
	}
}

func TestMergeKeepsDefaultsForBlankFields(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Shell: ShellConfig{Title: "  "}, Logging: LoggingConfig{Level: "DEBUG"}}
	mergeInto(&dst, &src)
	if dst.Shell.Title != "VoxScribe" {
		t.Fatalf("blank title overrode default: %q", dst.Shell.Title)
	}
	if dst.Logging.Level != "debug" {
		t.Fatalf("level not lowercased: %q", dst.Logging.Level)
	}
	if dst.Shell.Width != 1024 {
		t.Fatalf("zero width overrode default")
	}
}

func TestEnsureDeviceID(t *testing.T) {
	cfg := Defaults()
	if !EnsureDeviceID(&cfg) || cfg.General.DeviceID == "" {
		t.Fatalf("device id not generated")
	}
	id := cfg.General.DeviceID
	if EnsureDeviceID(&cfg) || cfg.General.DeviceID != id {
		t.Fatalf("existing device id replaced")
	}
}

func TestDataDirDefaultsUnderConfigDir(t *testing.T) {
	dir, _ := useTempConfig(t)
	cfg := Defaults()
	got, err := cfg.DataDir()
	if err != nil {
		t.Fatalf("DataDir() error: %v", err)
	}
	if got != filepath.Join(dir, "data") {
		t.Fatalf("DataDir() = %q", got)
	}
	cfg.Storage.DataDir = "/srv/vox"
	if got, _ := cfg.DataDir(); got != "/srv/vox" {
		t.Fatalf("explicit data dir ignored: %q", got)
	}
}

func TestSaveDeviceIDKeepsEnvOverridesOutOfFile(t *testing.T) {
	dir, _ := useTempConfig(t)
	oneOff := filepath.Join(dir, "one-off-data")
	t.Setenv(EnvDataDir, oneOff)
	t.Setenv(EnvLogLevel, "debug")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !EnsureDeviceID(&cfg) {
		t.Fatalf("expected a fresh device id")
	}
	if err := SaveDeviceID(cfg.General.DeviceID); err != nil {
		t.Fatalf("SaveDeviceID: %v", err)
	}

	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")
	again, _, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.General.DeviceID != cfg.General.DeviceID {
		t.Fatalf("device id not persisted: %q vs %q", again.General.DeviceID, cfg.General.DeviceID)
	}
	if again.Storage.DataDir != "" || again.Logging.Level != "info" {
		t.Fatalf("env overrides leaked into config file: data_dir=%q level=%q", again.Storage.DataDir, again.Logging.Level)
	}
}

func TestSaveDeviceIDPreservesFileSettings(t *testing.T) {
	useTempConfig(t)
	cfg := Defaults()
	cfg.Shell.Title = "Vox Dev"
	cfg.General.Theme = "dark"
	if err := Save(cfg, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := SaveDeviceID("dev-1"); err != nil {
		t.Fatalf("SaveDeviceID: %v", err)
	}
	got, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Shell.Title != "Vox Dev" || got.General.Theme != "dark" || got.General.DeviceID != "dev-1" {
		t.Fatalf("file settings lost: %+v", got)
	}
}

func TestDeepgramKeyFromKeychainAndEnv(t *testing.T) {
	_, mem := useTempConfig(t)
	t.Setenv(EnvDeepgramKey, "")
	if k := DeepgramKey(); k != "" {
		t.Fatalf("expected no key, got %q", k)
	}
	if err := SetDeepgramKey(" dg-key "); err != nil {
		t.Fatalf("SetDeepgramKey: %v", err)
	}
	if mem[KeyringService+"/"+keyDeepgram] != "dg-key" {
		t.Fatalf("key not stored trimmed: %v", mem)
	}
	if k := DeepgramKey(); k != "dg-key" {
		t.Fatalf("DeepgramKey() = %q", k)
	}
	t.Setenv(EnvDeepgramKey, "env-key")
	if k := DeepgramKey(); k != "env-key" {
		t.Fatalf("env key should win, got %q", k)
	}
	if err := SetDeepgramKey(""); err != nil {
		t.Fatalf("remove key: %v", err)
	}
	if _, ok := mem[KeyringService+"/"+keyDeepgram]; ok {
		t.Fatalf("key not removed")
	}
}

func TestTranscribeDefaultsAndEnvURL(t *testing.T) {
	useTempConfig(t)
	t.Setenv(EnvDeepgramURL, "ws://127.0.0.1:9/v1/listen")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transcribe.URL != "ws://127.0.0.1:9/v1/listen" || cfg.Transcribe.TimeoutMs != 5000 {
		t.Fatalf("transcribe config = %+v", cfg.Transcribe)
	}
}
