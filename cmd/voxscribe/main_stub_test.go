//go:build !fyne && !wails

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"strings"
	"testing"
)

func TestRun_NoShellCompiledIn(t *testing.T) {
	code, _, errOut := runCLI(t, testConfig(t), "voxscribe://open?id=42")
	if code != 1 || !strings.Contains(errOut, "UI not built") {
		t.Fatalf("ui launch: code=%d err=%q", code, errOut)
	}
}
