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
	"fmt"
)

// Greet formats the greeting returned by the greet command.
func Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

type greetRequest struct {
	Name string `json:"name"`
}

// GreetCommand exposes Greet as {"name": string} -> string.
func GreetCommand() Command {
	return Command{
		Name: "greet",
		Schema: `{
			"type": "object",
			"properties": {"name": {"type": "string"}},
			"required": ["name"]
		}`,
		Handler: func(_ context.Context, payload json.RawMessage) (any, error) {
			req, err := Decode[greetRequest](payload)
			if err != nil {
				return nil, err
			}
			return Greet(req.Name), nil
		},
	}
}
