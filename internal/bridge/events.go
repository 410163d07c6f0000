/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package bridge is the native side of the frontend bridge: a fire-and-forget
// event bus towards frontend listeners and a named command registry the
// frontend invokes with JSON payloads.
package bridge

import (
	"errors"
	"log/slog"
	"sync"

	applog "voxscribe/internal/log"
)

// DeepLinkEvent is the event name carrying a forwarded deep-link URL.
const DeepLinkEvent = "deep-link://new-url"

// ErrQueueFull is returned by Emit when the dispatcher is saturated.
var ErrQueueFull = errors.New("bridge: event queue full")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("bridge: bus closed")

// Event is a named message with a single payload.
type Event struct {
	Name    string
	Payload any
}

// Listener receives events. It runs on the dispatcher goroutine and must not block for long.
type Listener func(Event)

type subscription struct {
	id   uint64
	name string // empty matches every event
	fn   Listener
}

// Bus queues events in a bounded buffer and delivers them in order from a
// single dispatcher goroutine. Events nobody listens to are dropped.
type Bus struct {
	log *slog.Logger
	q   chan Event

	mu     sync.RWMutex
	subs   []subscription
	nextID uint64

	// qmu orders sends against Close: an Emit that returned nil is
	// always drained before the dispatcher exits.
	qmu     sync.RWMutex
	closed  bool
	closing chan struct{}
	done    chan struct{}
}

// NewBus starts a bus with the given queue capacity (64 when <= 0).
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	b := &Bus{
		log:     applog.WithComponent("bridge"),
		q:       make(chan Event, capacity),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.loop()
	return b
}

// Subscribe registers fn for events called name and returns a function that
// removes the subscription.
func (b *Bus) Subscribe(name string, fn Listener) (unsubscribe func()) {
	return b.add(name, fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Listener) (unsubscribe func()) {
	return b.add("", fn)
}

func (b *Bus) add(name string, fn Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, fn: fn})
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit enqueues an event without blocking.
func (b *Bus) Emit(name string, payload any) error {
	b.qmu.RLock()
	defer b.qmu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.q <- Event{Name: name, Payload: payload}:
		return nil
	default:
		b.log.Warn("event dropped, queue full", slog.String("event", name))
		return ErrQueueFull
	}
}

// Close stops the dispatcher after it drains already queued events.
func (b *Bus) Close() {
	b.qmu.Lock()
	if !b.closed {
		b.closed = true
		close(b.closing)
	}
	b.qmu.Unlock()
	<-b.done
}

func (b *Bus) loop() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.q:
			b.dispatch(ev)
		case <-b.closing:
			for {
				select {
				case ev := <-b.q:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(ev Event) {
	b.mu.RLock()
	var targets []Listener
	for _, s := range b.subs {
		if s.name == "" || s.name == ev.Name {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()
	if len(targets) == 0 {
		b.log.Debug("event has no listener", slog.String("event", ev.Name))
		return
	}
	for _, fn := range targets {
		b.deliver(fn, ev)
	}
}

func (b *Bus) deliver(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked", slog.String("event", ev.Name), slog.Any("panic", r))
		}
	}()
	fn(ev)
}
