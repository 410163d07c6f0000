/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"voxscribe/internal/bridge"
)

type memKeychain struct {
	mu sync.Mutex
	m  map[string]string
}

func newMem() *memKeychain { return &memKeychain{m: map[string]string{}} }

func (k *memKeychain) Get(s, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[s+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}

func (k *memKeychain) Set(s, key, v string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[s+"/"+key] = v
	return nil
}

func (k *memKeychain) Delete(s, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.m[s+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(k.m, s+"/"+key)
	return nil
}

const callback = "voxscribe://auth-callback#access_token=a1.b2.c3&refresh_token=r1&token_type=bearer&expires_at=1700000000"

func TestFromCallback(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	sess, ok := FromCallback(callback, now)
	if !ok {
		t.Fatalf("callback not recognised")
	}
	if sess.AccessToken != "a1.b2.c3" || sess.RefreshToken != "r1" || sess.TokenType != "bearer" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !sess.ExpiresAt.Equal(time.Unix(1700000000, 0)) || !sess.ReceivedAt.Equal(now) {
		t.Fatalf("unexpected times %+v", sess)
	}
}

func TestFromCallbackIgnoresOtherLinks(t *testing.T) {
	for _, raw := range []string{
		"voxscribe://open?id=42",
		"voxscribe://auth-callback#access_token=only",
		"%%%access_token",
	} {
		if _, ok := FromCallback(raw, time.Now()); ok {
			t.Fatalf("%q should not yield a session", raw)
		}
	}
}

func TestStoreRoundTripAndClear(t *testing.T) {
	st := NewStore(newMem())
	if _, err := st.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("empty store Load = %v", err)
	}
	if err := st.Save(Session{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := st.Load()
	if err != nil || got.AccessToken != "a" {
		t.Fatalf("Load = %+v, %v", got, err)
	}
	if err := st.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := st.Clear(); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestCaptureStoresSessionFromBus(t *testing.T) {
	bus := bridge.NewBus(4)
	st := NewStore(newMem())
	stop := Capture(bus, st)
	defer stop()

	done := make(chan struct{})
	bus.Subscribe(bridge.DeepLinkEvent, func(bridge.Event) { close(done) })
	_ = bus.Emit(bridge.DeepLinkEvent, callback)
	<-done
	bus.Close()

	sess, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sess.RefreshToken != "r1" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestSessionCommands(t *testing.T) {
	st := NewStore(newMem())
	reg := bridge.NewRegistry()
	reg.MustRegister(Commands(st)...)
	ctx := context.Background()

	out, err := reg.Invoke(ctx, "session_get", nil)
	if err != nil || out.(Status).SignedIn {
		t.Fatalf("session_get on empty store = %+v, %v", out, err)
	}
	_ = st.Save(Session{AccessToken: "tok", RefreshToken: "r"})
	out, err = reg.Invoke(ctx, "session_get", nil)
	if err != nil || !out.(Status).SignedIn || out.(Status).AccessToken != "tok" {
		t.Fatalf("session_get = %+v, %v", out, err)
	}
	if _, err := reg.Invoke(ctx, "session_clear", nil); err != nil {
		t.Fatalf("session_clear: %v", err)
	}
	if _, err := st.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session not cleared")
	}
}
