/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	applog "voxscribe/internal/log"
)

// ErrUnknownCommand is returned by Invoke for unregistered names.
var ErrUnknownCommand = errors.New("bridge: unknown command")

// ValidationError reports a request payload rejected by the command schema.
type ValidationError struct {
	Command string
	Issues  []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bridge: invalid %s request: %s", e.Command, strings.Join(e.Issues, "; "))
}

// Handler serves one command invocation. The payload has already been validated.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Command is a named request/response operation exposed to the frontend.
type Command struct {
	Name string
	// Schema is an optional JSON schema for the request payload.
	Schema  string
	Handler Handler
}

type registered struct {
	Command
	schema *gojsonschema.Schema
}

// Registry maps command names to handlers.
type Registry struct {
	mu   sync.RWMutex
	cmds map[string]registered
	log  *slog.Logger
}

func NewRegistry() *Registry {
	return &Registry{cmds: map[string]registered{}, log: applog.WithComponent("commands")}
}

// Register adds cmd, compiling its schema. Registering a name twice is an error.
func (r *Registry) Register(cmd Command) error {
	if strings.TrimSpace(cmd.Name) == "" || cmd.Handler == nil {
		return errors.New("bridge: command needs a name and a handler")
	}
	reg := registered{Command: cmd}
	if cmd.Schema != "" {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(cmd.Schema))
		if err != nil {
			return fmt.Errorf("bridge: compile schema for %s: %w", cmd.Name, err)
		}
		reg.schema = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.cmds[cmd.Name]; dup {
		return fmt.Errorf("bridge: command %s already registered", cmd.Name)
	}
	r.cmds[cmd.Name] = reg
	return nil
}

// MustRegister is Register for static command tables.
func (r *Registry) MustRegister(cmds ...Command) {
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Names lists registered commands in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.cmds))
	for n := range r.cmds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Invoke validates payload against the command schema and runs the handler.
// An empty payload is treated as an empty JSON object.
func (r *Registry) Invoke(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	r.mu.RLock()
	cmd, ok := r.cmds[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	if len(strings.TrimSpace(string(payload))) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if cmd.schema != nil {
		res, err := cmd.schema.Validate(gojsonschema.NewBytesLoader(payload))
		if err != nil {
			return nil, &ValidationError{Command: name, Issues: []string{err.Error()}}
		}
		if !res.Valid() {
			issues := make([]string, 0, len(res.Errors()))
			for _, e := range res.Errors() {
				issues = append(issues, e.String())
			}
			return nil, &ValidationError{Command: name, Issues: issues}
		}
	}
	r.log.Debug("invoke", slog.String("command", name))
	return cmd.Handler(ctx, payload)
}

// Decode unmarshals a validated payload into T.
func Decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("bridge: decode payload: %w", err)
	}
	return v, nil
}
