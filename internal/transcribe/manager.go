/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"voxscribe/internal/bridge"
	applog "voxscribe/internal/log"
)

// Manager owns at most one active Stream, the recorder of the app.
type Manager struct {
	cfg Config
	ev  Emitter

	mu  sync.Mutex
	cur *Stream
}

func NewManager(cfg Config, ev Emitter) *Manager {
	return &Manager{cfg: cfg, ev: ev}
}

// Start opens a stream unless one is already running.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		return ErrRecording
	}
	s, err := Dial(ctx, m.cfg, m.ev)
	if err != nil {
		return err
	}
	m.cur = s
	return nil
}

// Send forwards audio to the running stream.
func (m *Manager) Send(pcm []byte) error {
	m.mu.Lock()
	s := m.cur
	m.mu.Unlock()
	if s == nil {
		return ErrNotRecording
	}
	return s.Send(pcm)
}

// Stop ends the running stream and returns its final transcript.
func (m *Manager) Stop() (string, error) {
	m.mu.Lock()
	s := m.cur
	m.cur = nil
	m.mu.Unlock()
	if s == nil {
		return "", ErrNotRecording
	}
	return s.Stop()
}

// Recording reports whether a stream is open.
func (m *Manager) Recording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur != nil
}

// Close stops a running stream, if any.
func (m *Manager) Close() {
	if _, err := m.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		applog.WithComponent("transcribe").Warn("stop on close failed", slog.Any("err", err))
	}
}

// audioRequest carries either raw linear16 bytes (base64 in JSON) or float
// samples as produced by the Web Audio API.
type audioRequest struct {
	PCM     []byte    `json:"pcm"`
	Samples []float32 `json:"samples"`
}

// Stopped is returned by transcribe_stop.
type Stopped struct {
	Text string `json:"text"`
}

// Status is returned by transcribe_status.
type Status struct {
	Recording bool `json:"recording"`
}

// Commands exposes the recorder to the frontend.
func Commands(m *Manager) []bridge.Command {
	return []bridge.Command{
		{
			Name: "transcribe_start",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				if err := m.Start(ctx); err != nil {
					return nil, err
				}
				return Status{Recording: true}, nil
			},
		},
		{
			Name:   "transcribe_audio",
			Schema: `{"type":"object","properties":{"pcm":{"type":"string"},"samples":{"type":"array","items":{"type":"number"}}}}`,
			Handler: func(_ context.Context, p json.RawMessage) (any, error) {
				req, err := bridge.Decode[audioRequest](p)
				if err != nil {
					return nil, err
				}
				pcm := req.PCM
				if len(req.Samples) > 0 {
					pcm = append(pcm, Float32ToInt16(req.Samples)...)
				}
				return nil, m.Send(pcm)
			},
		},
		{
			Name: "transcribe_stop",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				text, err := m.Stop()
				if err != nil {
					return nil, err
				}
				return Stopped{Text: text}, nil
			},
		},
		{
			Name: "transcribe_status",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return Status{Recording: m.Recording()}, nil
			},
		},
	}
}
