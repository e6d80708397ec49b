package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/use-agent/plugscrape/config"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/popup"
)

// headerFlags collects repeated -header "Name: value" flags.
type headerFlags map[string]string

func (h headerFlags) String() string {
	parts := make([]string, 0, len(h))
	for k, v := range h {
		parts = append(parts, k+": "+v)
	}
	return strings.Join(parts, ", ")
}

func (h headerFlags) Set(s string) error {
	name, value, ok := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return fmt.Errorf("header %q is not in Name: value form", s)
	}
	h[name] = strings.TrimSpace(value)
	return nil
}

// statusPrinter mirrors the session's status line on w.
func statusPrinter(w io.Writer) popup.Notifier {
	return popup.NotifierFunc(func(e popup.Event) {
		if e.Type != popup.EventStatus || e.Notice == nil {
			return
		}
		fmt.Fprintln(w, e.Notice.Message)
	})
}

func runExport(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	pageURL := fs.String("url", "", "address of the admin/plugins.php page")
	kindName := fs.String("kind", string(models.KindText), "output: text, document, markdown or spreadsheet")
	outDir := fs.String("out", cfg.Export.OutputDir, `directory for the exported file, or "-" for stdout`)
	lang := fs.String("lang", "", "language to switch to before exporting (remembered)")
	htmlFile := fs.String("html", "", "read the page from a saved HTML file instead of fetching it")
	headers := headerFlags{}
	fs.Var(headers, "header", `request header "Name: value" (repeatable), e.g. a Cookie carrying an admin session`)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	kind, err := models.ParseKind(*kindName)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	target := *pageURL
	if target == "" {
		if *htmlFile == "" {
			fmt.Fprintln(stderr, "export: -url or -html is required")
			return 2
		}
		target = fileURL(*htmlFile)
	}

	a, err := newApp(ctx, cfg, logger, appOptions{htmlFile: *htmlFile})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer a.close()

	reg := a.registry(statusPrinter(stderr))
	defer reg.CloseAll()

	s, err := reg.Open(ctx, "")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *lang != "" {
		if err := s.SetLanguage(ctx, *lang); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}

	var saver exporter.Saver = exporter.DirSaver{Dir: *outDir}
	if *outDir == "-" {
		saver = exporter.WriterSaver{W: stdout}
	}

	res, err := s.Export(ctx, popup.Target{URL: target, Kind: kind, Headers: headers}, saver)
	if err != nil {
		// Failures after validation were already shown on the status line
		// and logged by the session.
		if models.CodeOf(err) == models.ErrCodeInvalidInput {
			fmt.Fprintln(stderr, err)
			return 2
		}
		return 1
	}
	if *outDir != "-" {
		fmt.Fprintln(stdout, res.Location)
	}
	return 0
}

// fileURL turns a local path into the file:// address recorded as the
// snapshot's source.
func fileURL(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}
