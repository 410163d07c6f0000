//go:build wails

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
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	wruntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"voxscribe/internal/app"
	"voxscribe/internal/arbiter"
	"voxscribe/internal/bridge"
	"voxscribe/internal/config"
	applog "voxscribe/internal/log"
	"voxscribe/internal/singleinstance"
)

const shellName = "wails"

//go:embed all:frontend
var assets embed.FS

// Bindings is the object bound to the webview as window.go.ui.Bindings.
type Bindings struct {
	ctx context.Context
	app *app.App
}

// Greet formats the greeting for name.
func (b *Bindings) Greet(name string) string { return bridge.Greet(name) }

// Invoke runs a named command; payload is the JSON request body.
func (b *Bindings) Invoke(name, payload string) (any, error) {
	return b.app.Invoke(b.ctx, name, json.RawMessage(payload))
}

// Run starts the Wails shell. A second process forwards its arguments to the
// primary over the single-instance socket and returns nil.
func Run(ctx context.Context, cfg config.AppConfig, launch Launcher) error {
	l := applog.WithComponent("ui")

	// Setup runs only in the primary and before wails.Run, so a blocked
	// launch never sets up and a failed setup never shows a window.
	p, a, err := startPrimary(ctx, cfg, singleinstance.Current(), launch)
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		l.Info("forwarded launch to running instance")
		return nil
	}
	if err != nil {
		return err
	}
	defer a.Close()
	defer p.Close()

	dist, err := fs.Sub(assets, "frontend")
	if err != nil {
		return err
	}
	b := &Bindings{ctx: ctx, app: a}
	exe, _ := os.Executable()

	return wails.Run(&options.App{
		Title:  cfg.Shell.Title,
		Width:  cfg.Shell.Width,
		Height: cfg.Shell.Height,
		// Backstop for a launch that raced past the socket lock.
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId: cfg.Shell.Identifier,
			OnSecondInstanceLaunch: func(second options.SecondInstanceData) {
				// Args excludes the program name; restore argv layout.
				args := append([]string{exe}, second.Args...)
				a.OnSecondInstanceLaunch(args, second.WorkingDirectory)
			},
		},
		AssetServer: &assetserver.Options{Assets: dist},
		OnStartup: func(wctx context.Context) {
			b.ctx = wctx
			a.Windows.Put(cfg.Shell.MainWindow, arbiter.FocusFunc(func() error {
				wruntime.WindowUnminimise(wctx)
				wruntime.WindowShow(wctx)
				return nil
			}))
			unsub := a.Bus.SubscribeAll(func(ev bridge.Event) {
				wruntime.EventsEmit(wctx, ev.Name, ev.Payload)
			})
			a.Defer(unsub)
			l.Info("window shown", slog.String("label", cfg.Shell.MainWindow))
		},
		OnShutdown: func(context.Context) {
			a.Windows.Remove(cfg.Shell.MainWindow)
		},
		Bind: []interface{}{b},
	})
}
