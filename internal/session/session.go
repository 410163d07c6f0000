/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package session keeps the OAuth session delivered through deep-link
// callbacks (voxscribe://...#access_token=...&refresh_token=...) in the OS keychain.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"voxscribe/internal/bridge"
	"voxscribe/internal/deeplink"
	applog "voxscribe/internal/log"
)

const (
	keyringService = "VoxScribe"
	keyringKey     = "session"
)

// ErrNoSession is returned by Load when nothing is stored.
var ErrNoSession = errors.New("session: none stored")

// Session holds the tokens of a signed-in user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	ReceivedAt   time.Time `json:"received_at"`
}

// Keychain abstracts the OS keychain so tests can stub it.
type Keychain interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

type osKeychain struct{}

func (osKeychain) Get(s, k string) (string, error) { return keyring.Get(s, k) }
func (osKeychain) Set(s, k, v string) error        { return keyring.Set(s, k, v) }
func (osKeychain) Delete(s, k string) error        { return keyring.Delete(s, k) }

// Store persists one Session.
type Store struct {
	kc  Keychain
	now func() time.Time
}

// NewStore uses kc, or the OS keychain when kc is nil.
func NewStore(kc Keychain) *Store {
	if kc == nil {
		kc = osKeychain{}
	}
	return &Store{kc: kc, now: time.Now}
}

func (s *Store) Save(sess Session) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.kc.Set(keyringService, keyringKey, string(b)); err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	return nil
}

func (s *Store) Load() (Session, error) {
	raw, err := s.kc.Get(keyringService, keyringKey)
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && raw == "") {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: load: %w", err)
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	return sess, nil
}

// Clear removes the stored session; clearing an empty store is not an error.
func (s *Store) Clear() error {
	err := s.kc.Delete(keyringService, keyringKey)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// FromCallback extracts a session from an OAuth deep link. ok is false when
// the URL is not a callback carrying both tokens.
func FromCallback(raw string, now time.Time) (Session, bool) {
	if !strings.Contains(raw, "access_token") {
		return Session{}, false
	}
	link, err := deeplink.Parse(raw)
	if err != nil {
		return Session{}, false
	}
	p := link.Params()
	sess := Session{
		AccessToken:  p.Get("access_token"),
		RefreshToken: p.Get("refresh_token"),
		TokenType:    p.Get("token_type"),
		ReceivedAt:   now.UTC(),
	}
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		return Session{}, false
	}
	if exp := p.Get("expires_at"); exp != "" {
		var secs int64
		if _, err := fmt.Sscan(exp, &secs); err == nil && secs > 0 {
			sess.ExpiresAt = time.Unix(secs, 0).UTC()
		}
	}
	return sess, true
}

// Subscriber is the part of the bridge bus Capture needs.
type Subscriber interface {
	Subscribe(name string, fn bridge.Listener) (unsubscribe func())
}

// Capture listens for deep-link events and stores any OAuth session they
// carry. The returned function stops listening.
func Capture(bus Subscriber, store *Store) func() {
	l := applog.WithComponent("session")
	return bus.Subscribe(bridge.DeepLinkEvent, func(ev bridge.Event) {
		raw, ok := ev.Payload.(string)
		if !ok {
			return
		}
		sess, ok := FromCallback(raw, store.now())
		if !ok {
			return
		}
		if err := store.Save(sess); err != nil {
			l.Warn("session not stored", slog.Any("err", err))
			return
		}
		l.Info("session stored from deep link")
	})
}
