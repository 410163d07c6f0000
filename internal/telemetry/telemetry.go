/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry is an opt-in, best-effort sender for anonymous usage
// events and crash reports. Nothing is sent unless the user opted in and an
// endpoint is configured.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	applog "voxscribe/internal/log"
	"voxscribe/internal/version"
)

// Config is read from the environment by FromEnv:
//   - VOX_TELEMETRY_OPT_IN: 1/true/yes/on enables sending
//   - VOX_TELEMETRY_URL: endpoint receiving JSON events
//   - VOX_CRASH_UPLOAD_URL: endpoint receiving plain-text crash reports
//   - VOX_TELEMETRY_TIMEOUT_MS: request timeout (default 1500)
type Config struct {
	OptIn     bool
	EventsURL string
	CrashURL  string
	Timeout   time.Duration
}

func FromEnv() Config {
	cfg := Config{
		OptIn:     truthy(os.Getenv("VOX_TELEMETRY_OPT_IN")),
		EventsURL: strings.TrimSpace(os.Getenv("VOX_TELEMETRY_URL")),
		CrashURL:  strings.TrimSpace(os.Getenv("VOX_CRASH_UPLOAD_URL")),
		Timeout:   1500 * time.Millisecond,
	}
	if ms := strings.TrimSpace(os.Getenv("VOX_TELEMETRY_TIMEOUT_MS")); ms != "" {
		if d, err := time.ParseDuration(ms + "ms"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

func truthy(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client queues events in a bounded channel and sends them from one goroutine.
// Send failures and a full queue drop the event.
type Client struct {
	cfg  Config
	log  *slog.Logger
	http *http.Client
	q    chan map[string]any

	wg       sync.WaitGroup
	stopOnce sync.Once
	stop     chan struct{}
}

// New starts a client.
func New(cfg Config) *Client {
	c := &Client{
		cfg:  cfg,
		log:  applog.WithComponent("telemetry"),
		http: &http.Client{Timeout: cfg.Timeout},
		q:    make(chan map[string]any, 64),
		stop: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

// Enabled reports whether events would be sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues a named event with non-identifying props.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	select {
	case c.q <- payload:
	default:
	}
}

// Flush waits until the queue is empty, ctx is done or 500ms passed.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.NewTimer(500 * time.Millisecond)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for len(c.q) > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Close stops the sender goroutine.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.wg.Wait()
}

func (c *Client) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case ev := <-c.q:
			c.post(c.cfg.EventsURL, "application/json", ev)
		}
	}
}

func (c *Client) post(url, contentType string, body any) {
	var buf []byte
	switch b := body.(type) {
	case []byte:
		buf = b
	default:
		buf, _ = json.Marshal(b)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("telemetry post failed", slog.Any("err", err))
		return
	}
	_ = resp.Body.Close()
}

// UploadCrash posts a crash report in the background if opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	b := append([]byte(nil), report...)
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", b)
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// Default returns the process-wide client, creating it from env on first use.
func Default() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault replaces the process-wide client, e.g. after the config file
// enabled telemetry.
func SetDefault(c *Client) {
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if prev != nil && prev != c {
		prev.Close()
	}
}

// Event sends through the default client.
func Event(name string, props map[string]any) { Default().Event(name, props) }

// UploadCrash sends through the default client.
func UploadCrash(report []byte) { Default().UploadCrash(report) }
