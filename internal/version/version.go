/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package version exposes the build version. Release builds set Version with
// -ldflags "-X voxscribe/internal/version.Version=v1.2.3".
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
)

// String returns a human-readable version, falling back to module build info
// when the binary was built without ldflags.
func String() string {
	v := Version
	if v == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", v, Commit)
	}
	return v
}
