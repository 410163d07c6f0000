/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package deeplink parses custom-scheme URLs handed to the app by the OS and
// registers the scheme with the operating system where that is required.
package deeplink

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fredbi/uri"
)

// Link is a parsed deep link such as voxscribe://open?id=42.
type Link struct {
	Raw      string
	Scheme   string
	Route    string // authority host, e.g. "open" or "auth-callback"
	Path     string
	Query    url.Values
	Fragment string
}

// Parse validates raw as an absolute RFC 3986 URI and splits it into a Link.
func Parse(raw string) (Link, error) {
	raw = strings.TrimSpace(raw)
	u, err := uri.Parse(raw)
	if err != nil {
		return Link{}, fmt.Errorf("deeplink: parse %q: %w", raw, err)
	}
	l := Link{
		Raw:      raw,
		Scheme:   strings.ToLower(u.Scheme()),
		Fragment: u.Fragment(),
		Query:    url.Values{},
	}
	if a := u.Authority(); a != nil {
		l.Route = strings.ToLower(a.Host())
		l.Path = a.Path()
	}
	if q := rawQuery(raw); q != "" {
		if vals, err := url.ParseQuery(q); err == nil {
			l.Query = vals
		}
	}
	return l, nil
}

// HasScheme reports whether the link uses scheme, case-insensitively.
func (l Link) HasScheme(scheme string) bool { return strings.EqualFold(l.Scheme, scheme) }

// Params merges query parameters with parameters carried in the fragment.
// OAuth providers return tokens as "#access_token=...&refresh_token=...";
// fragment values win over query values with the same key.
func (l Link) Params() url.Values {
	out := url.Values{}
	for k, v := range l.Query {
		out[k] = append([]string(nil), v...)
	}
	if l.Fragment != "" {
		if vals, err := url.ParseQuery(l.Fragment); err == nil {
			for k, v := range vals {
				out[k] = v
			}
		}
	}
	return out
}

func rawQuery(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	i := strings.IndexByte(raw, '?')
	if i < 0 {
		return ""
	}
	return raw[i+1:]
}
