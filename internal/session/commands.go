/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"encoding/json"
	"errors"

	"voxscribe/internal/bridge"
)

// Status is returned to the frontend by session_get.
type Status struct {
	SignedIn    bool   `json:"signed_in"`
	AccessToken string `json:"access_token,omitempty"`
}

// Commands exposes the store to the frontend.
func Commands(store *Store) []bridge.Command {
	return []bridge.Command{
		{
			Name: "session_get",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				sess, err := store.Load()
				if errors.Is(err, ErrNoSession) {
					return Status{}, nil
				}
				if err != nil {
					return nil, err
				}
				return Status{SignedIn: true, AccessToken: sess.AccessToken}, nil
			},
		},
		{
			Name: "session_clear",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return nil, store.Clear()
			},
		},
	}
}
