/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package transcribe streams microphone audio to Deepgram's live
// transcription websocket and publishes interim and final transcripts on the
// frontend bridge. Audio is 16 kHz mono linear16 PCM.
package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "voxscribe/internal/log"
)

// Bridge events carrying transcript updates.
const (
	InterimEvent = "transcribe://interim"
	FinalEvent   = "transcribe://final"
)

const DefaultURL = "wss://api.deepgram.com/v1/listen"

var (
	ErrNoAPIKey     = errors.New("transcribe: no Deepgram API key configured")
	ErrRecording    = errors.New("transcribe: already recording")
	ErrNotRecording = errors.New("transcribe: not recording")
)

// Emitter delivers bridge events without blocking.
type Emitter interface {
	Emit(name string, payload any) error
}

// Config selects the endpoint and audio format.
type Config struct {
	URL        string
	APIKey     string
	SampleRate int
	Channels   int
	Model      string
	Language   string

	// Timeout bounds the handshake and the wait for trailing results on Stop.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// endpoint builds the listen URL with the streaming parameters.
func (c Config) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("transcribe: parse url: %w", err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(c.SampleRate))
	q.Set("channels", strconv.Itoa(c.Channels))
	q.Set("interim_results", "true")
	if c.Model != "" {
		q.Set("model", c.Model)
	}
	if c.Language != "" {
		q.Set("language", c.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Update is the payload of InterimEvent and FinalEvent.
type Update struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// result is the subset of a Deepgram "Results" message we read.
type result struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Stream is one live transcription connection.
type Stream struct {
	conn *websocket.Conn
	ev   Emitter
	log  *slog.Logger
	wait time.Duration

	wmu sync.Mutex

	mu    sync.Mutex
	final []string

	done chan struct{}
	err  error
}

// Dial opens a stream. Results are emitted on ev until Stop.
func Dial(ctx context.Context, cfg Config, ev Emitter) (*Stream, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}
	d := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	h := http.Header{}
	h.Set("Authorization", "Token "+cfg.APIKey)
	conn, resp, err := d.DialContext(ctx, endpoint, h)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transcribe: dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("transcribe: dial: %w", err)
	}
	s := &Stream{
		conn: conn,
		ev:   ev,
		log:  applog.WithComponent("transcribe"),
		wait: cfg.Timeout,
		done: make(chan struct{}),
	}
	go s.read()
	s.log.Info("stream opened")
	return s, nil
}

func (s *Stream) read() {
	defer close(s.done)
	for {
		typ, data, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		var r result
		if err := json.Unmarshal(data, &r); err != nil {
			s.log.Debug("unreadable message", slog.Any("err", err))
			continue
		}
		if len(r.Channel.Alternatives) == 0 {
			continue
		}
		text := r.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}
		name := InterimEvent
		if r.IsFinal {
			name = FinalEvent
			s.mu.Lock()
			s.final = append(s.final, text)
			s.mu.Unlock()
		}
		if s.ev != nil {
			if err := s.ev.Emit(name, Update{Text: text, IsFinal: r.IsFinal}); err != nil {
				s.log.Debug("transcript event not delivered", slog.Any("err", err))
			}
		}
	}
}

// Send writes one chunk of linear16 PCM.
func (s *Stream) Send(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	select {
	case <-s.done:
		if s.err != nil {
			return fmt.Errorf("transcribe: stream closed: %w", s.err)
		}
		return errors.New("transcribe: stream closed")
	default:
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm)
}

// Text returns the final segments received so far, joined by spaces.
func (s *Stream) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.final, " ")
}

// Stop asks the server to flush, waits for its trailing results and closes
// the connection. It returns the accumulated final transcript.
func (s *Stream) Stop() (string, error) {
	s.wmu.Lock()
	werr := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	s.wmu.Unlock()
	if werr == nil {
		select {
		case <-s.done:
		case <-time.After(s.wait):
			s.log.Debug("server did not close the stream in time")
		}
	}
	s.wmu.Lock()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.wmu.Unlock()
	_ = s.conn.Close()
	<-s.done
	s.log.Info("stream closed")
	return s.Text(), nil
}

// Float32ToInt16 converts samples in [-1, 1] to little-endian linear16,
// clamping values outside the range.
func Float32ToInt16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, f := range samples {
		v := math.Max(-1, math.Min(1, float64(f)))
		var n int16
		if v < 0 {
			n = int16(v * 0x8000)
		} else {
			n = int16(v * 0x7fff)
		}
		out[2*i] = byte(n)
		out[2*i+1] = byte(uint16(n) >> 8)
	}
	return out
}
