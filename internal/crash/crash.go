/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in an entry point into a logged error, a crash
// report on disk and a non-zero exit.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "voxscribe/internal/log"
	"voxscribe/internal/telemetry"
	"voxscribe/internal/version"
)

// DirName is the sub-directory of the data dir receiving reports.
const DirName = "crash"

// exitFn is swapped in tests so Recover does not end the test binary.
var exitFn = os.Exit

// Recover must be deferred directly: defer crash.Recover(dataDir).
// An empty dataDir writes the report to the system temp dir.
func Recover(dataDir string) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	path, err := writeReport(dataDir, r, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}
	fmt.Fprintf(os.Stderr, "VoxScribe hit a fatal error. A crash report was saved to: %s\n", path)
	fmt.Fprintf(os.Stderr, "Version: %s  OS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	_ = applog.Close()
	exitFn(2)
}

func writeReport(dataDir string, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if dataDir != "" {
		dir = filepath.Join(dataDir, DirName)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			dir = os.TempDir()
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405.000")))

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "VoxScribe Crash Report\n")
	fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&buf, "Version: %s\n", version.String())
	fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
