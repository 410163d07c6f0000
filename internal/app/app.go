/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package app holds the application context: the one object built at startup
// and handed to every shell callback. It owns the frontend bridge, the
// instance arbiter and the stores behind the commands.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voxscribe/internal/arbiter"
	"voxscribe/internal/bridge"
	"voxscribe/internal/cloud"
	"voxscribe/internal/config"
	"voxscribe/internal/deeplink"
	applog "voxscribe/internal/log"
	"voxscribe/internal/session"
	"voxscribe/internal/telemetry"
	"voxscribe/internal/transcribe"
	"voxscribe/internal/transcripts"
)

// SetupError aborts startup. Stage names the step that failed.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string { return fmt.Sprintf("setup %s: %v", e.Stage, e.Err) }

func (e *SetupError) Unwrap() error { return e.Err }

// Options carries the collaborators Setup needs. Zero values select the
// production implementations.
type Options struct {
	Config      config.AppConfig
	CloudDSN    string
	DeepgramKey string
	DataDir     string

	// Registrar overrides the platform scheme registrar.
	Registrar deeplink.Registrar
	// RegisterScheme overrides the platform capability check.
	RegisterScheme *bool
	// Keychain overrides the OS keychain used for the session.
	Keychain session.Keychain
	// Telemetry overrides the process-wide telemetry client.
	Telemetry *telemetry.Client
}

// App is the application context.
type App struct {
	Config   config.AppConfig
	Bus      *bridge.Bus
	Commands *bridge.Registry
	Windows  *arbiter.Windows
	Arbiter  *arbiter.Arbiter
	Sessions *session.Store
	Store    *transcripts.Store
	Cloud    *cloud.Syncer
	Recorder *transcribe.Manager

	tel     *telemetry.Client
	log     *slog.Logger
	closers []func()
}

// Setup builds the application context. Any error is a *SetupError and
// means the process must not show a window.
func Setup(ctx context.Context, opt Options) (*App, error) {
	l := applog.WithComponent("app")
	cfg := opt.Config

	needsReg := deeplink.NeedsRegistration()
	if opt.RegisterScheme != nil {
		needsReg = *opt.RegisterScheme
	}
	if needsReg {
		reg := opt.Registrar
		if reg == nil {
			reg = deeplink.NewRegistrar("", cfg.Shell.Scheme)
		}
		if err := reg.RegisterAll(); err != nil {
			l.Error("url scheme registration failed", slog.Any("err", err))
			return nil, &SetupError{Stage: "deep-link", Err: err}
		}
		l.Info("url scheme registered", slog.String("scheme", cfg.Shell.Scheme))
	}

	a := &App{
		Config:   cfg,
		Bus:      bridge.NewBus(64),
		Commands: bridge.NewRegistry(),
		Windows:  arbiter.NewWindows(),
		Sessions: session.NewStore(opt.Keychain),
		tel:      opt.Telemetry,
		log:      l,
	}
	if a.tel == nil {
		a.tel = telemetry.Default()
	}
	a.closers = append(a.closers, a.Bus.Close)

	a.Arbiter = arbiter.New(a.Bus, a.Windows, cfg.Shell.MainWindow)
	a.Arbiter.OnRelay = func(r arbiter.Relay) {
		a.tel.Event("second_instance", map[string]any{"has_url": r.URL != "", "focused": r.Focused})
	}
	a.closers = append(a.closers, session.Capture(a.Bus, a.Sessions))
	a.closers = append(a.closers, a.Bus.Subscribe(bridge.DeepLinkEvent, func(ev bridge.Event) {
		props := map[string]any{}
		if link, err := deeplink.Parse(fmt.Sprint(ev.Payload)); err == nil {
			props["scheme"] = link.Scheme
			props["route"] = link.Route
		}
		a.tel.Event("deep_link", props)
	}))

	dataDir := opt.DataDir
	if dataDir == "" {
		d, err := cfg.DataDir()
		if err != nil {
			a.Close()
			return nil, &SetupError{Stage: "storage", Err: err}
		}
		dataDir = d
	}
	store, err := transcripts.Open(ctx, dataDir)
	if err != nil {
		a.Close()
		return nil, &SetupError{Stage: "storage", Err: err}
	}
	a.Store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if cfg.Cloud.Enabled && opt.CloudDSN != "" {
		timeout := time.Duration(cfg.Cloud.TimeoutMs) * time.Millisecond
		s, err := cloud.Connect(ctx, opt.CloudDSN, cfg.General.DeviceID, timeout)
		if err != nil {
			// Sync is optional; the command reports it as unavailable.
			l.Warn("cloud sync unavailable", slog.Any("err", err))
		} else {
			a.Cloud = s
			a.closers = append(a.closers, s.Close)
		}
	}

	a.Recorder = transcribe.NewManager(transcribe.Config{
		URL:      cfg.Transcribe.URL,
		APIKey:   opt.DeepgramKey,
		Model:    cfg.Transcribe.Model,
		Language: cfg.Transcribe.Language,
		Timeout:  time.Duration(cfg.Transcribe.TimeoutMs) * time.Millisecond,
	}, a.Bus)
	a.closers = append(a.closers, a.Recorder.Close)

	if err := a.registerCommands(); err != nil {
		a.Close()
		return nil, &SetupError{Stage: "commands", Err: err}
	}
	a.tel.Event("app_started", nil)
	return a, nil
}

func (a *App) registerCommands() error {
	cmds := []bridge.Command{bridge.GreetCommand()}
	cmds = append(cmds, transcripts.Commands(a.Store)...)
	cmds = append(cmds, session.Commands(a.Sessions)...)
	cmds = append(cmds, cloud.Command(a.Cloud, a.Store))
	cmds = append(cmds, transcribe.Commands(a.Recorder)...)
	for _, c := range cmds {
		if err := a.Commands.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// OnSecondInstanceLaunch forwards to the arbiter; shells wire it into their
// single-instance hook.
func (a *App) OnSecondInstanceLaunch(args []string, cwd string) {
	a.Arbiter.OnSecondInstanceLaunch(args, cwd)
}

// Invoke runs a frontend command.
func (a *App) Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	out, err := a.Commands.Invoke(ctx, name, payload)
	if err != nil && !errors.Is(err, transcripts.ErrEmpty) {
		a.log.Warn("command failed", slog.String("command", name), slog.Any("err", err))
	}
	return out, err
}

// Defer registers fn to run on Close, before anything Setup acquired.
func (a *App) Defer(fn func()) { a.closers = append(a.closers, fn) }

// Close releases everything Setup acquired, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
