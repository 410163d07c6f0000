/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package singleinstance makes the first process that binds a local socket
// the primary instance. Later processes hand their argv and working directory
// to the primary over that socket and then exit.
package singleinstance

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	applog "voxscribe/internal/log"
)

// ErrAlreadyRunning is returned by Acquire after the launch was forwarded to
// the primary instance.
var ErrAlreadyRunning = errors.New("singleinstance: another instance is running")

// Launch is what a blocked process forwards to the primary.
type Launch struct {
	Args []string `json:"args"`
	Cwd  string   `json:"cwd"`
}

// Handler runs in the primary for every forwarded launch.
type Handler func(args []string, cwd string)

// Lock is held by the primary instance until Release.
type Lock struct {
	ln      net.Listener
	path    string
	handler Handler
	log     *slog.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

const dialTimeout = 500 * time.Millisecond

// SocketPath returns the socket file used for id inside dir.
func SocketPath(dir, id string) string {
	return filepath.Join(dir, id+".sock")
}

// Acquire tries to become the primary instance on socket path. If another
// process already owns the socket, self is forwarded to it and
// ErrAlreadyRunning is returned.
func Acquire(ctx context.Context, path string, self Launch, handler Handler) (*Lock, error) {
	l := applog.WithComponent("singleinstance")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("singleinstance: create dir: %w", err)
	}

	switch err := forward(ctx, path, self); {
	case err == nil:
		l.Info("launch forwarded to running instance", slog.String("socket", path))
		return nil, ErrAlreadyRunning
	case errors.Is(err, errNoAck):
		// Someone accepted the connection, so a primary is alive.
		l.Warn("running instance did not acknowledge launch", slog.Any("err", err))
		return nil, ErrAlreadyRunning
	case !isStale(err):
		return nil, fmt.Errorf("singleinstance: contact %s: %w", path, err)
	}

	// Nothing listens at path: whatever is there is left over from a crash.
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		// Lost a race with a concurrent first launch.
		if ferr := forward(ctx, path, self); ferr == nil || errors.Is(ferr, errNoAck) {
			return nil, ErrAlreadyRunning
		}
		return nil, fmt.Errorf("singleinstance: listen %s: %w", path, err)
	}
	lock := &Lock{ln: ln, path: path, handler: handler, log: l}
	lock.wg.Add(1)
	go lock.serve()
	l.Debug("primary instance", slog.String("socket", path))
	return lock, nil
}

// errNoAck wraps failures after the primary accepted the connection.
var errNoAck = errors.New("singleinstance: no acknowledgement")

// forward returns the dial error unchanged so isStale can inspect it.
func forward(ctx context.Context, path string, self Launch) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	if err := json.NewEncoder(conn).Encode(self); err != nil {
		return fmt.Errorf("%w: %v", errNoAck, err)
	}
	// Wait for the primary's ack so the caller may exit right away.
	if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
		return fmt.Errorf("%w: %v", errNoAck, err)
	}
	return nil
}

func (lk *Lock) serve() {
	defer lk.wg.Done()
	for {
		conn, err := lk.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			lk.log.Debug("accept failed", slog.Any("err", err))
			continue
		}
		lk.wg.Add(1)
		go func() {
			defer lk.wg.Done()
			lk.handle(conn)
		}()
	}
}

func (lk *Lock) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var msg Launch
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		lk.log.Debug("bad launch message", slog.Any("err", err))
		return
	}
	_, _ = conn.Write([]byte("ok\n"))
	if lk.handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			lk.log.Error("second instance handler panicked", slog.Any("panic", r))
		}
	}()
	lk.handler(msg.Args, msg.Cwd)
}

// Release stops accepting launches and removes the socket file.
func (lk *Lock) Release() error {
	var err error
	lk.once.Do(func() {
		err = lk.ln.Close()
		lk.wg.Wait()
		_ = os.Remove(lk.path)
	})
	return err
}

// Current returns the Launch describing this process.
func Current() Launch {
	cwd, _ := os.Getwd()
	return Launch{Args: append([]string(nil), os.Args...), Cwd: cwd}
}
