//go:build windows

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
	"os"
	"path/filepath"

	"golang.org/x/sys/windows/registry"
)

type windowsRegistrar struct {
	schemes []string
	exe     string
}

// NewRegistrar returns the registry-backed registrar for schemes. An empty
// exe defaults to the running executable.
func NewRegistrar(exe string, schemes ...string) Registrar {
	return &windowsRegistrar{schemes: schemes, exe: exe}
}

// RegisterAll writes HKCU\Software\Classes\<scheme> for every scheme so the
// shell launches this executable with the URL as argv[1].
func (r *windowsRegistrar) RegisterAll() error {
	exe := r.exe
	if exe == "" {
		p, err := os.Executable()
		if err != nil {
			return &RegistrationError{Scheme: firstOr(r.schemes), Err: err}
		}
		exe = p
	}
	exe = filepath.Clean(exe)
	for _, s := range r.schemes {
		if err := registerScheme(s, exe); err != nil {
			return &RegistrationError{Scheme: s, Err: err}
		}
	}
	return nil
}

func registerScheme(scheme, exe string) error {
	base := `Software\Classes\` + scheme
	k, _, err := registry.CreateKey(registry.CURRENT_USER, base, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()
	if err := k.SetStringValue("", "URL:"+scheme+" Protocol"); err != nil {
		return err
	}
	if err := k.SetStringValue("URL Protocol", ""); err != nil {
		return err
	}

	cmd, _, err := registry.CreateKey(registry.CURRENT_USER, base+`\shell\open\command`, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer cmd.Close()
	return cmd.SetStringValue("", fmt.Sprintf(`"%s" "%%1"`, exe))
}

func firstOr(s []string) string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}
