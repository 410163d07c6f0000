//go:build fyne && cgo && !wails

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"voxscribe/internal/app"
	"voxscribe/internal/arbiter"
	"voxscribe/internal/bridge"
	"voxscribe/internal/config"
	applog "voxscribe/internal/log"
	"voxscribe/internal/singleinstance"
	"voxscribe/internal/transcripts"
	"voxscribe/internal/version"
)

const shellName = "fyne"

// Run starts the Fyne shell. A second process forwards its arguments to the
// primary over the single-instance socket and returns nil.
func Run(ctx context.Context, cfg config.AppConfig, launch Launcher) error {
	l := applog.WithComponent("ui")

	p, a, err := startPrimary(ctx, cfg, singleinstance.Current(), launch)
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		l.Info("forwarded launch to running instance")
		return nil
	}
	if err != nil {
		return err
	}
	defer a.Close()
	defer p.Close()

	fa := fyneapp.NewWithID(cfg.Shell.Identifier)
	if th := themeFor(cfg.General.Theme); th != nil {
		fa.Settings().SetTheme(th)
	}
	w := fa.NewWindow(cfg.Shell.Title)
	w.Resize(fyne.NewSize(float32(cfg.Shell.Width), float32(cfg.Shell.Height)))

	a.Windows.Put(cfg.Shell.MainWindow, arbiter.FocusFunc(func() error {
		fyne.Do(func() {
			w.Show()
			w.RequestFocus()
		})
		return nil
	}))
	defer a.Windows.Remove(cfg.Shell.MainWindow)

	status := widget.NewLabel("Ready")
	lastLink := widget.NewLabel("No deep link received yet")
	lastLink.Wrapping = fyne.TextWrapWord

	history := newHistoryView(ctx, a, w, status)

	unsub := a.Bus.Subscribe(bridge.DeepLinkEvent, func(ev bridge.Event) {
		url := fmt.Sprint(ev.Payload)
		fyne.Do(func() {
			lastLink.SetText(url)
			status.SetText("Deep link received")
		})
		history.refreshLater()
	})
	defer unsub()

	nameEntry := widget.NewEntry()
	nameEntry.SetPlaceHolder("Enter a name...")
	greetMsg := widget.NewLabel("")
	greetBtn := widget.NewButton("Greet", func() {
		payload, _ := json.Marshal(map[string]string{"name": nameEntry.Text})
		out, err := a.Invoke(ctx, "greet", payload)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		greetMsg.SetText(fmt.Sprint(out))
	})
	nameEntry.OnSubmitted = func(string) { greetBtn.OnTapped() }

	greetRow := container.NewBorder(nil, nil, nil, greetBtn, nameEntry)
	top := container.NewVBox(
		widget.NewLabelWithStyle("Welcome to "+cfg.Shell.Title, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		greetRow,
		greetMsg,
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Last deep link", fyne.TextAlignLeading, fyne.TextStyle{Italic: true}),
		lastLink,
		widget.NewSeparator(),
	)
	w.SetContent(container.NewBorder(top, status, nil, nil, history.widget()))

	aboutItem := fyne.NewMenuItem("About "+cfg.Shell.Title, func() {
		dialog.ShowInformation("About", fmt.Sprintf("%s\nVersion: %s\nShell: %s", cfg.Shell.Title, version.String(), shellName), w)
	})
	w.SetMainMenu(fyne.NewMainMenu(fyne.NewMenu("Help", aboutItem)))

	history.refresh()
	l.Info("window shown", slog.String("label", cfg.Shell.MainWindow))
	w.ShowAndRun()
	return nil
}

// historyView lists saved transcripts with copy/delete/clear actions.
type historyView struct {
	ctx    context.Context
	a      *app.App
	w      fyne.Window
	status *widget.Label
	items  []transcripts.Transcript
	list   *widget.List
	input  *widget.Entry
}

func newHistoryView(ctx context.Context, a *app.App, w fyne.Window, status *widget.Label) *historyView {
	h := &historyView{ctx: ctx, a: a, w: w, status: status}
	h.list = widget.NewList(
		func() int { return len(h.items) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			if id < 0 || id >= len(h.items) {
				return
			}
			t := h.items[id]
			o.(*widget.Label).SetText(t.CreatedAt.Local().Format("2006-01-02 15:04") + "  " + firstLine(t.Text))
		},
	)
	h.input = widget.NewMultiLineEntry()
	h.input.SetPlaceHolder("Paste or type a transcript")
	return h
}

func (h *historyView) widget() fyne.CanvasObject {
	var selected = -1
	h.list.OnSelected = func(id widget.ListItemID) { selected = id }

	save := widget.NewButton("Save", func() {
		payload, _ := json.Marshal(map[string]string{"text": h.input.Text})
		if _, err := h.a.Invoke(h.ctx, "transcript_save", payload); err != nil {
			h.status.SetText(err.Error())
			return
		}
		h.input.SetText("")
		h.refresh()
	})
	del := widget.NewButton("Delete", func() {
		if selected < 0 || selected >= len(h.items) {
			return
		}
		payload, _ := json.Marshal(map[string]int64{"id": h.items[selected].ID})
		if _, err := h.a.Invoke(h.ctx, "transcript_delete", payload); err != nil {
			dialog.ShowError(err, h.w)
			return
		}
		selected = -1
		h.list.UnselectAll()
		h.refresh()
	})
	copyAll := widget.NewButton("Copy all", func() {
		out, err := h.a.Invoke(h.ctx, "transcript_copy_all", nil)
		if err != nil {
			dialog.ShowError(err, h.w)
			return
		}
		h.w.Clipboard().SetContent(fmt.Sprint(out))
		h.status.SetText("Copied to clipboard")
	})
	clearBtn := widget.NewButton("Clear", func() {
		dialog.ShowConfirm("Clear history", "Delete all transcripts?", func(ok bool) {
			if !ok {
				return
			}
			if _, err := h.a.Invoke(h.ctx, "transcript_clear", nil); err != nil {
				dialog.ShowError(err, h.w)
				return
			}
			h.refresh()
		}, h.w)
	})
	exportPDF := widget.NewButton("Export PDF", func() {
		dlg := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			path := wc.URI().Path()
			_ = wc.Close()
			payload, _ := json.Marshal(map[string]string{"path": path})
			if _, err := h.a.Invoke(h.ctx, "transcript_export_pdf", payload); err != nil {
				dialog.ShowError(err, h.w)
				return
			}
			h.status.SetText("Exported " + path)
		}, h.w)
		dlg.SetFileName("transcripts.pdf")
		dlg.Show()
	})
	actions := container.NewHBox(save, del, copyAll, clearBtn, exportPDF)
	return container.NewBorder(container.NewVBox(h.input, actions), nil, nil, nil, h.list)
}

// refresh reloads the list; must run on the UI goroutine.
func (h *historyView) refresh() {
	list, err := h.a.Store.List(h.ctx)
	if err != nil {
		h.status.SetText(err.Error())
		return
	}
	h.items = list
	h.list.Refresh()
}

func (h *historyView) refreshLater() { fyne.Do(h.refresh) }

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	if r := []rune(s); len(r) > 80 {
		s = string(r[:77]) + "..."
	}
	return s
}
