/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package config loads and persists the user-editable VoxScribe settings.
// The YAML file lives in the per-user config directory; environment
// variables act as read-only overrides and secrets stay in the OS keychain.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	DeviceID       string `yaml:"device_id"`
}

// ShellConfig describes the application identity the OS and the webview see.
type ShellConfig struct {
	Identifier string `yaml:"identifier"`
	Scheme     string `yaml:"scheme"`
	MainWindow string `yaml:"main_window"`
	Title      string `yaml:"title"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type CloudConfig struct {
	Enabled   bool `yaml:"enabled"`
	TimeoutMs int  `yaml:"timeout_ms"`
	// The DSN is not stored on disk; it lives in the OS keychain.
}

// TranscribeConfig points the recorder at a Deepgram-compatible live endpoint.
// The API key lives in the OS keychain.
type TranscribeConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	Language  string `yaml:"language"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the persisted configuration. Bump ConfigVersion on
// backward-incompatible layout changes.
type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	General       GeneralConfig    `yaml:"general"`
	Shell         ShellConfig      `yaml:"shell"`
	Storage       StorageConfig    `yaml:"storage"`
	Cloud         CloudConfig      `yaml:"cloud"`
	Transcribe    TranscribeConfig `yaml:"transcribe"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{Theme: "system"},
		Shell: ShellConfig{
			Identifier: "com.voxscribe.app",
			Scheme:     "voxscribe",
			MainWindow: "main",
			Title:      "VoxScribe",
			Width:      1024,
			Height:     720,
		},
		Cloud: CloudConfig{TimeoutMs: 10000},
		Transcribe: TranscribeConfig{
			URL:       "wss://api.deepgram.com/v1/listen",
			TimeoutMs: 5000,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir      = "VOX_CONFIG_DIR"
	EnvDataDir        = "VOX_DATA_DIR"
	EnvScheme         = "VOX_SCHEME"
	EnvTelemetryOptIn = "VOX_TELEMETRY_OPT_IN"
	EnvCloudEnabled   = "VOX_CLOUD_ENABLED"
	EnvCloudDSN       = "VOX_CLOUD_DSN"
	EnvCloudTimeoutMs = "VOX_CLOUD_TIMEOUT_MS"
	EnvDeepgramKey    = "VOX_DEEPGRAM_API_KEY"
	EnvDeepgramURL    = "VOX_DEEPGRAM_URL"
	EnvLogLevel       = "VOX_LOG_LEVEL"
	EnvLogFormat      = "VOX_LOG_FORMAT"
	EnvLogSource      = "VOX_LOG_SOURCE"
	EnvLogFile        = "VOX_LOG_FILE"
)

// Keychain service/key names.
const (
	KeyringService = "VoxScribe"
	keyCloudDSN    = "cloud_dsn"
	keyDeepgram    = "deepgram_api_key"
)

// SecretStore abstracts the OS keychain so tests can stub it.
type SecretStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

var secrets SecretStore = osKeyring{}

// SetSecretStore replaces the keychain backend and returns the previous one.
func SetSecretStore(s SecretStore) SecretStore {
	prev := secrets
	secrets = s
	return prev
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "VoxScribe")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "VoxScribe")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "voxscribe")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "voxscribe")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Path returns the per-user config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir resolves where the transcript database and crash reports live.
func (c AppConfig) DataDir() (string, error) {
	if d := strings.TrimSpace(c.Storage.DataDir); d != "" {
		return d, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// Load reads the user config file (if present), applies defaults and merges
// environment overrides. The cloud DSN is returned separately from the keychain
// unless VOX_CLOUD_DSN is set.
func Load() (AppConfig, string, error) {
	cfg, err := loadFile()
	if err != nil {
		return cfg, "", err
	}
	applyEnvOverrides(&cfg)
	dsn := strings.TrimSpace(os.Getenv(EnvCloudDSN))
	if dsn == "" {
		dsn, _ = secrets.Get(KeyringService, keyCloudDSN)
	}
	return cfg, dsn, nil
}

// loadFile returns defaults merged with the config file, without env overrides.
func loadFile() (AppConfig, error) {
	cfg := Defaults()
	path, err := Path()
	if err != nil {
		return cfg, err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			mergeInto(&cfg, &fileCfg)
		}
	}
	return cfg, nil
}

// SaveDeviceID persists id into the config file and leaves every other
// setting as the file has it, so env overrides of this run are not written.
func SaveDeviceID(id string) error {
	cfg, err := loadFile()
	if err != nil {
		return err
	}
	cfg.General.DeviceID = id
	return Save(cfg, "")
}

// Save writes the YAML file and stores a non-empty DSN in the keychain.
func Save(cfg AppConfig, dsn string) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if dsn != "" {
		return secrets.Set(KeyringService, keyCloudDSN, dsn)
	}
	return nil
}

// DeepgramKey returns the transcription API key: VOX_DEEPGRAM_API_KEY, else
// the keychain entry. Empty means transcription is unavailable.
func DeepgramKey() string {
	if v := env(EnvDeepgramKey); v != "" {
		return v
	}
	v, _ := secrets.Get(KeyringService, keyDeepgram)
	return v
}

// SetDeepgramKey stores key in the keychain; an empty key removes it.
func SetDeepgramKey(key string) error {
	if key = strings.TrimSpace(key); key == "" {
		return secrets.Delete(KeyringService, keyDeepgram)
	}
	return secrets.Set(KeyringService, keyDeepgram, key)
}

// EnsureDeviceID assigns a random device id if none is set and reports
// whether cfg changed and should be saved.
func EnsureDeviceID(cfg *AppConfig) bool {
	if strings.TrimSpace(cfg.General.DeviceID) != "" {
		return false
	}
	cfg.General.DeviceID = uuid.NewString()
	return true
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	setIf(&dst.General.Theme, src.General.Theme)
	setIf(&dst.General.DeviceID, src.General.DeviceID)

	setIf(&dst.Shell.Identifier, src.Shell.Identifier)
	setIf(&dst.Shell.Scheme, strings.ToLower(src.Shell.Scheme))
	setIf(&dst.Shell.MainWindow, src.Shell.MainWindow)
	setIf(&dst.Shell.Title, src.Shell.Title)
	if src.Shell.Width > 0 {
		dst.Shell.Width = src.Shell.Width
	}
	if src.Shell.Height > 0 {
		dst.Shell.Height = src.Shell.Height
	}

	setIf(&dst.Storage.DataDir, src.Storage.DataDir)

	dst.Cloud.Enabled = src.Cloud.Enabled
	if src.Cloud.TimeoutMs > 0 {
		dst.Cloud.TimeoutMs = src.Cloud.TimeoutMs
	}

	setIf(&dst.Transcribe.URL, src.Transcribe.URL)
	setIf(&dst.Transcribe.Model, src.Transcribe.Model)
	setIf(&dst.Transcribe.Language, src.Transcribe.Language)
	if src.Transcribe.TimeoutMs > 0 {
		dst.Transcribe.TimeoutMs = src.Transcribe.TimeoutMs
	}

	setIf(&dst.Logging.Level, strings.ToLower(src.Logging.Level))
	setIf(&dst.Logging.Format, strings.ToLower(src.Logging.Format))
	dst.Logging.Source = src.Logging.Source
	setIf(&dst.Logging.File, src.Logging.File)
}

func setIf(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := env(EnvDataDir); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := env(EnvScheme); v != "" {
		cfg.Shell.Scheme = strings.ToLower(v)
	}
	if v := env(EnvTelemetryOptIn); v != "" {
		cfg.General.TelemetryOptIn = truthy(v)
	}
	if v := env(EnvCloudEnabled); v != "" {
		cfg.Cloud.Enabled = truthy(v)
	}
	if v := env(EnvCloudTimeoutMs); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cloud.TimeoutMs = n
		}
	}
	if v := env(EnvDeepgramURL); v != "" {
		cfg.Transcribe.URL = v
	}
	if v := env(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := env(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := env(EnvLogSource); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := env(EnvLogFile); v != "" {
		cfg.Logging.File = v
	}
}

func env(key string) string { return strings.TrimSpace(os.Getenv(key)) }

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}
