/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ui hosts the desktop shells. The shell is picked at build time:
//
//	go build -tags wails ./cmd/voxscribe   webview shell (Wails)
//	go build -tags fyne  ./cmd/voxscribe   native shell (Fyne, needs cgo)
//
// Builds without either tag get a stub so CI stays headless.
package ui

import (
	"context"
	"sync/atomic"

	"voxscribe/internal/app"
	"voxscribe/internal/config"
	"voxscribe/internal/singleinstance"
)

// Launcher builds the application context. Shells call it once they know the
// process is the primary instance; an error means no window is shown.
type Launcher func(ctx context.Context) (*app.App, error)

// Shell names the compiled-in shell.
func Shell() string { return shellName }

// primary is the process holding the single-instance lock.
type primary struct {
	lock *singleinstance.Lock
	app  atomic.Pointer[app.App]
}

// startPrimary takes the single-instance lock and only then runs launch, so a
// blocked launch never performs setup. It returns singleinstance.ErrAlreadyRunning
// after forwarding self to the running instance. Launches arriving while
// launch runs are dropped.
func startPrimary(ctx context.Context, cfg config.AppConfig, self singleinstance.Launch, launch Launcher) (*primary, *app.App, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	p := &primary{}
	lock, err := singleinstance.Acquire(ctx, singleinstance.SocketPath(dir, cfg.Shell.Identifier), self,
		func(args []string, cwd string) {
			if a := p.app.Load(); a != nil {
				a.OnSecondInstanceLaunch(args, cwd)
			}
		})
	if err != nil {
		return nil, nil, err
	}
	p.lock = lock

	a, err := launch(ctx)
	if err != nil {
		_ = lock.Release()
		return nil, nil, err
	}
	p.app.Store(a)
	return p, a, nil
}

// Close stops relaying launches. The App is closed by its owner.
func (p *primary) Close() {
	p.app.Store(nil)
	_ = p.lock.Release()
}
