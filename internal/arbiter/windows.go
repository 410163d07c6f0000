/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package arbiter

import "sync"

// FocusFunc adapts a plain function to Window.
type FocusFunc func() error

func (f FocusFunc) SetFocus() error { return f() }

// Windows is a concurrency-safe WindowRegistry shells fill as windows come and go.
type Windows struct {
	mu sync.RWMutex
	m  map[string]Window
}

func NewWindows() *Windows { return &Windows{m: map[string]Window{}} }

// Put registers w under label, replacing any previous window.
func (ws *Windows) Put(label string, w Window) {
	ws.mu.Lock()
	ws.m[label] = w
	ws.mu.Unlock()
}

// Remove forgets label.
func (ws *Windows) Remove(label string) {
	ws.mu.Lock()
	delete(ws.m, label)
	ws.mu.Unlock()
}

func (ws *Windows) Window(label string) (Window, bool) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	w, ok := ws.m[label]
	return w, ok
}
