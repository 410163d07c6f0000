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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"voxscribe/internal/app"
	"voxscribe/internal/bridge"
	"voxscribe/internal/cloud"
	"voxscribe/internal/config"
	"voxscribe/internal/crash"
	"voxscribe/internal/deeplink"
	applog "voxscribe/internal/log"
	"voxscribe/internal/telemetry"
	"voxscribe/internal/transcripts"
	"voxscribe/internal/ui"
	"voxscribe/internal/version"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "VoxScribe desktop shell")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  voxscribe [<url>]                         Launch the desktop UI (build with -tags wails or -tags fyne)")
	fmt.Fprintln(w, "  voxscribe version|-v|--version            Show version")
	fmt.Fprintln(w, "  voxscribe greet <name>                    Print the greeting")
	fmt.Fprintln(w, "  voxscribe transcripts list                List saved transcripts")
	fmt.Fprintln(w, "  voxscribe transcripts add <text>          Save a transcript")
	fmt.Fprintln(w, "  voxscribe transcripts delete <id>         Delete a transcript")
	fmt.Fprintln(w, "  voxscribe transcripts clear               Delete all transcripts")
	fmt.Fprintln(w, "  voxscribe transcripts export <file.pdf>   Export transcripts as PDF")
	fmt.Fprintln(w, "  voxscribe transcripts sync                Push unsynced transcripts to the cloud database")
	fmt.Fprintln(w, "  voxscribe register-scheme                 Register the URL scheme with the OS")
	fmt.Fprintln(w, "  voxscribe deepgram-key [<key>]            Store (or with no key, remove) the Deepgram API key")
}

func main() {
	cfg, dsn, err := config.Load()
	if err != nil {
		// Unreadable config is not fatal; run with defaults.
		fmt.Fprintln(os.Stderr, "config:", err)
		cfg = config.Defaults()
	}
	if config.EnsureDeviceID(&cfg) {
		_ = config.SaveDeviceID(cfg.General.DeviceID)
	}

	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	defer applog.Close()

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = cfg.General.TelemetryOptIn
	tel := telemetry.New(tcfg)
	telemetry.SetDefault(tel)
	defer tel.Close()

	dataDir, _ := cfg.DataDir()
	defer crash.Recover(dataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args, cfg, dsn, os.Stdout, os.Stderr)
	stop()
	if code != 0 {
		tel.Close()
		_ = applog.Close()
		os.Exit(code)
	}
}

// run dispatches one invocation and returns the process exit code.
func run(ctx context.Context, args []string, cfg config.AppConfig, dsn string, stdout, stderr io.Writer) int {
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(args)))

	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Fprintln(stdout, "VoxScribe", version.String())
			return 0
		case "help", "--help", "-h":
			usage(stdout)
			return 0
		case "greet":
			if len(args) < 3 {
				fmt.Fprintln(stderr, "greet requires <name>")
				usage(stderr)
				return 2
			}
			fmt.Fprintln(stdout, bridge.Greet(strings.Join(args[2:], " ")))
			return 0
		case "transcripts":
			return runTranscripts(ctx, args[2:], cfg, dsn, stdout, stderr)
		case "register-scheme":
			if err := deeplink.NewRegistrar("", cfg.Shell.Scheme).RegisterAll(); err != nil {
				l.Error("register scheme failed", slog.Any("err", err))
				fmt.Fprintln(stderr, "Error:", err)
				return 1
			}
			if !deeplink.NeedsRegistration() {
				fmt.Fprintln(stdout, "Nothing to register on this platform; the installer declares the scheme.")
				return 0
			}
			fmt.Fprintf(stdout, "Registered %s:// for this user.\n", cfg.Shell.Scheme)
			return 0
		case "deepgram-key":
			key := ""
			if len(args) >= 3 {
				key = args[2]
			}
			if err := config.SetDeepgramKey(key); err != nil {
				l.Error("store deepgram key failed", slog.Any("err", err))
				fmt.Fprintln(stderr, "Error:", err)
				return 1
			}
			if key == "" {
				fmt.Fprintln(stdout, "Deepgram API key removed.")
			} else {
				fmt.Fprintln(stdout, "Deepgram API key stored in the OS keychain.")
			}
			return 0
		}
		if strings.HasPrefix(args[1], "-") {
			usage(stderr)
			return 2
		}
	}

	err := ui.Run(ctx, cfg, func(ctx context.Context) (*app.App, error) {
		return app.Setup(ctx, app.Options{Config: cfg, CloudDSN: dsn, DeepgramKey: config.DeepgramKey()})
	})
	if err != nil {
		var se *app.SetupError
		if errors.As(err, &se) {
			l.Error("startup aborted", slog.String("stage", se.Stage), slog.Any("err", se.Err))
		}
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func runTranscripts(ctx context.Context, args []string, cfg config.AppConfig, dsn string, stdout, stderr io.Writer) int {
	l := applog.WithComponent("cli").With(slog.String("cmd", "transcripts"))
	if len(args) == 0 {
		usage(stderr)
		return 2
	}
	dataDir, err := cfg.DataDir()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	store, err := transcripts.Open(ctx, dataDir)
	if err != nil {
		l.Error("open store failed", slog.Any("err", err))
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer store.Close()

	fail := func(err error) int {
		l.Error(args[0]+" failed", slog.Any("err", err))
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	switch args[0] {
	case "list":
		list, err := store.List(ctx)
		if err != nil {
			return fail(err)
		}
		if len(list) == 0 {
			fmt.Fprintln(stdout, "No transcripts yet.")
			return 0
		}
		for _, t := range list {
			fmt.Fprintf(stdout, "%d\t%s\t%s\n", t.ID, t.CreatedAt.Local().Format(time.RFC3339), oneLine(t.Text))
		}
	case "add":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "add requires <text>")
			return 2
		}
		t, err := store.Add(ctx, strings.Join(args[1:], " "))
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Saved transcript %d\n", t.ID)
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "delete requires <id>")
			return 2
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			fmt.Fprintln(stderr, "invalid id:", args[1])
			return 2
		}
		if err := store.Delete(ctx, id); err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Deleted transcript %d\n", id)
	case "clear":
		n, err := store.Clear(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Deleted %d transcripts\n", n)
	case "export":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "export requires <file.pdf>")
			return 2
		}
		if err := store.ExportPDF(ctx, args[1], transcripts.PDFOptions{Title: cfg.Shell.Title + " transcripts"}); err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, "Exported to", args[1])
	case "sync":
		if !cfg.Cloud.Enabled || dsn == "" {
			return fail(cloud.ErrDisabled)
		}
		s, err := cloud.Connect(ctx, dsn, cfg.General.DeviceID, time.Duration(cfg.Cloud.TimeoutMs)*time.Millisecond)
		if err != nil {
			return fail(err)
		}
		defer s.Close()
		res, err := s.Push(ctx, store)
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(stdout, "Pushed %d transcripts (%d new)\n", res.Pushed, res.Inserted)
	default:
		fmt.Fprintln(stderr, "unknown transcripts command:", args[0])
		usage(stderr)
		return 2
	}
	return 0
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
