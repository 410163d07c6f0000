/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package deeplink

import (
	"fmt"
	"runtime"
)

// Registrar makes the OS route scheme-prefixed URLs to this executable.
type Registrar interface {
	RegisterAll() error
}

// RegistrationError reports that the OS refused the scheme registration.
type RegistrationError struct {
	Scheme string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register URL scheme %q: %v", e.Scheme, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// NeedsRegistration reports whether the current platform requires the app to
// register its scheme at runtime. macOS and Linux pick it up from the bundle
// or desktop entry written by the installer.
func NeedsRegistration() bool { return runtime.GOOS == "windows" }

// NopRegistrar is used where no runtime registration is needed.
type NopRegistrar struct{}

func (NopRegistrar) RegisterAll() error { return nil }
