/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zalando/go-keyring"

	"voxscribe/internal/app"
	"voxscribe/internal/bridge"
	"voxscribe/internal/config"
	"voxscribe/internal/singleinstance"
	"voxscribe/internal/telemetry"
)

type memKeychain struct {
	mu sync.Mutex
	m  map[string]string
}

func (k *memKeychain) Get(s, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if v, ok := k.m[s+key]; ok {
		return v, nil
	}
	return "", keyring.ErrNotFound
}

func (k *memKeychain) Set(s, key, v string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[s+key] = v
	return nil
}

func (k *memKeychain) Delete(s, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, s+key)
	return nil
}

func testLauncher(t *testing.T, calls *int) Launcher {
	t.Helper()
	dataDir := t.TempDir()
	tel := telemetry.New(telemetry.Config{})
	t.Cleanup(tel.Close)
	register := false
	return func(ctx context.Context) (*app.App, error) {
		*calls++
		return app.Setup(ctx, app.Options{
			Config:         config.Defaults(),
			DataDir:        dataDir,
			RegisterScheme: &register,
			Keychain:       &memKeychain{m: map[string]string{}},
			Telemetry:      tel,
		})
	}
}

func TestBlockedLaunchSkipsSetupAndRelays(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())
	cfg := config.Defaults()

	firstCalls := 0
	p, a, err := startPrimary(context.Background(), cfg, singleinstance.Launch{Args: []string{"app"}}, testLauncher(t, &firstCalls))
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	defer a.Close()
	defer p.Close()
	if firstCalls != 1 {
		t.Fatalf("primary ran setup %d times", firstCalls)
	}

	got := make(chan string, 1)
	unsub := a.Bus.Subscribe(bridge.DeepLinkEvent, func(ev bridge.Event) { got <- ev.Payload.(string) })
	defer unsub()

	secondCalls := 0
	second := singleinstance.Launch{Args: []string{"app", "voxscribe://open?id=42"}}
	p2, a2, err := startPrimary(context.Background(), cfg, second, testLauncher(t, &secondCalls))
	if !errors.Is(err, singleinstance.ErrAlreadyRunning) || p2 != nil || a2 != nil {
		t.Fatalf("second start = %v, %v, %v; want ErrAlreadyRunning", p2, a2, err)
	}
	if secondCalls != 0 {
		t.Fatalf("blocked launch ran setup")
	}
	select {
	case url := <-got:
		if url != "voxscribe://open?id=42" {
			t.Fatalf("relayed %q", url)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("deep link not relayed to the primary")
	}
}

func TestFailedSetupReleasesLock(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())
	cfg := config.Defaults()
	boom := errors.New("setup failed")
	_, _, err := startPrimary(context.Background(), cfg, singleinstance.Launch{}, func(context.Context) (*app.App, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected setup error, got %v", err)
	}

	calls := 0
	p, a, err := startPrimary(context.Background(), cfg, singleinstance.Launch{}, testLauncher(t, &calls))
	if err != nil {
		t.Fatalf("start after failed setup: %v", err)
	}
	a.Close()
	p.Close()
}
