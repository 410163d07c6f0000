/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package arbiter handles launches blocked by single-instance enforcement:
// it relays a deep-link argument of the second launch to the running
// instance's frontend and brings the running instance's main window forward.
package arbiter

import (
	"log/slog"
	"sync/atomic"

	"voxscribe/internal/bridge"
	applog "voxscribe/internal/log"
)

// MainWindowLabel identifies the window focused on a second launch.
const MainWindowLabel = "main"

// Emitter delivers a named event to frontend listeners without blocking.
type Emitter interface {
	Emit(name string, payload any) error
}

// Window is the part of a native window the arbiter needs.
type Window interface {
	SetFocus() error
}

// WindowRegistry looks windows up by label. ok is false when the window
// does not exist (yet).
type WindowRegistry interface {
	Window(label string) (w Window, ok bool)
}

// State of the arbiter.
type State int32

const (
	SingleRunning State = iota
	Blocked
)

func (s State) String() string {
	if s == Blocked {
		return "blocked"
	}
	return "single-running"
}

// Relay describes one handled second launch.
type Relay struct {
	Args    []string
	Cwd     string
	URL     string
	Emitted bool
	Focused bool
}

// Arbiter is safe for use from multiple callback goroutines.
type Arbiter struct {
	events  Emitter
	windows WindowRegistry
	label   string
	log     *slog.Logger
	state   atomic.Int32
	relays  atomic.Uint64

	// OnRelay, when set, observes every handled launch after both side effects ran.
	OnRelay func(Relay)
}

// New builds an arbiter that focuses the window labelled label ("main" when empty).
func New(events Emitter, windows WindowRegistry, label string) *Arbiter {
	if label == "" {
		label = MainWindowLabel
	}
	return &Arbiter{
		events:  events,
		windows: windows,
		label:   label,
		log:     applog.WithComponent("arbiter"),
	}
}

// OnSecondInstanceLaunch is called in the running instance with the argv and
// working directory of a launch that was blocked. args[1], when present, is
// forwarded as a deep-link event; the main window is focused either way.
// Failures of either side effect are logged and otherwise ignored.
func (a *Arbiter) OnSecondInstanceLaunch(args []string, cwd string) {
	a.state.Store(int32(Blocked))
	defer a.state.Store(int32(SingleRunning))
	a.relays.Add(1)

	r := Relay{Args: args, Cwd: cwd}
	l := a.log.With(slog.Int("args", len(args)), slog.String("cwd", cwd))

	if len(args) >= 2 {
		r.URL = args[1]
		if a.events == nil {
			l.Debug("deep link not relayed, no emitter")
		} else if err := a.events.Emit(bridge.DeepLinkEvent, r.URL); err != nil {
			l.Debug("deep link event not delivered", slog.Any("err", err))
		} else {
			r.Emitted = true
		}
	}

	r.Focused = a.focus(l)
	l.Info("second instance blocked", slog.Bool("deep_link", r.Emitted), slog.Bool("focused", r.Focused))

	if a.OnRelay != nil {
		a.OnRelay(r)
	}
}

func (a *Arbiter) focus(l *slog.Logger) bool {
	if a.windows == nil {
		return false
	}
	w, ok := a.windows.Window(a.label)
	if !ok || w == nil {
		l.Debug("window not found, focus skipped", slog.String("window", a.label))
		return false
	}
	if err := w.SetFocus(); err != nil {
		l.Debug("focus request failed", slog.String("window", a.label), slog.Any("err", err))
		return false
	}
	return true
}

// State returns the current arbiter state.
func (a *Arbiter) State() State { return State(a.state.Load()) }

// Relays returns how many second launches were handled.
func (a *Arbiter) Relays() uint64 { return a.relays.Load() }
