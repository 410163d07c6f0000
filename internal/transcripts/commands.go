/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package transcripts

import (
	"context"
	"encoding/json"

	"voxscribe/internal/bridge"
)

type saveRequest struct {
	Text string `json:"text"`
}

type idRequest struct {
	ID int64 `json:"id"`
}

type exportRequest struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Commands exposes the store to the frontend.
func Commands(s *Store) []bridge.Command {
	return []bridge.Command{
		{
			Name:   "transcript_save",
			Schema: `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`,
			Handler: func(ctx context.Context, p json.RawMessage) (any, error) {
				req, err := bridge.Decode[saveRequest](p)
				if err != nil {
					return nil, err
				}
				return s.Add(ctx, req.Text)
			},
		},
		{
			Name: "transcript_list",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return s.List(ctx)
			},
		},
		{
			Name:   "transcript_delete",
			Schema: `{"type":"object","properties":{"id":{"type":"integer","minimum":1}},"required":["id"]}`,
			Handler: func(ctx context.Context, p json.RawMessage) (any, error) {
				req, err := bridge.Decode[idRequest](p)
				if err != nil {
					return nil, err
				}
				return nil, s.Delete(ctx, req.ID)
			},
		},
		{
			Name: "transcript_clear",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return s.Clear(ctx)
			},
		},
		{
			Name: "transcript_copy_all",
			Handler: func(ctx context.Context, _ json.RawMessage) (any, error) {
				return s.JoinedText(ctx)
			},
		},
		{
			Name:   "transcript_export_pdf",
			Schema: `{"type":"object","properties":{"path":{"type":"string","minLength":1},"title":{"type":"string"}},"required":["path"]}`,
			Handler: func(ctx context.Context, p json.RawMessage) (any, error) {
				req, err := bridge.Decode[exportRequest](p)
				if err != nil {
					return nil, err
				}
				return req.Path, s.ExportPDF(ctx, req.Path, PDFOptions{Title: req.Title})
			},
		},
	}
}
