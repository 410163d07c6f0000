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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls transcript export. Sizes are in points.
type PDFOptions struct {
	Title    string
	FontSize float64
	// Location formats the per-transcript timestamps; nil means local time.
	Location *time.Location
}

// WritePDF renders list as an A4 document: a title, then one block per
// transcript with its timestamp. Built-in Helvetica keeps the output portable.
func WritePDF(w io.Writer, list []Transcript, opt PDFOptions) error {
	if opt.Title == "" {
		opt.Title = "VoxScribe transcripts"
	}
	if opt.FontSize <= 0 {
		opt.FontSize = 11
	}
	loc := opt.Location
	if loc == nil {
		loc = time.Local
	}

	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetTitle(opt.Title, true)
	pdf.SetCreator("VoxScribe", true)
	pdf.SetMargins(48, 56, 48)
	pdf.SetAutoPageBreak(true, 56)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	lineH := opt.FontSize * 1.4

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", opt.FontSize+7)
	pdf.CellFormat(0, lineH*1.5, tr(opt.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", opt.FontSize-2)
	pdf.SetTextColor(100, 116, 139)
	pdf.CellFormat(0, lineH, fmt.Sprintf("%d transcript(s)", len(list)), "", 1, "L", false, 0, "")
	pdf.Ln(lineH / 2)

	for i, t := range list {
		pdf.SetFont("Helvetica", "B", opt.FontSize-1)
		pdf.SetTextColor(79, 70, 229)
		head := fmt.Sprintf("#%d  %s", i+1, t.CreatedAt.In(loc).Format("2006-01-02 15:04"))
		pdf.CellFormat(0, lineH, head, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", opt.FontSize)
		pdf.SetTextColor(15, 23, 42)
		pdf.MultiCell(0, lineH, tr(t.Text), "", "L", false)
		pdf.Ln(lineH / 2)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("transcripts: render pdf: %w", err)
	}
	return pdf.Output(w)
}

// ExportPDF writes every stored transcript to outPath.
func (s *Store) ExportPDF(ctx context.Context, outPath string, opt PDFOptions) error {
	list, err := s.List(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("transcripts: create export dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("transcripts: create %s: %w", outPath, err)
	}
	if err := WritePDF(f, list, opt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
