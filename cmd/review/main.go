// Command review checks CSR files on disk against a style guide and writes
// the corrected document and the analysis workbook next to each input.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/csr-style-review/internal/bootstrap"
	"github.com/kirillkom/csr-style-review/internal/config"
	"github.com/kirillkom/csr-style-review/internal/core/domain"
	"github.com/kirillkom/csr-style-review/internal/core/usecase"
	"github.com/kirillkom/csr-style-review/internal/infrastructure/export"
	"github.com/kirillkom/csr-style-review/internal/observability/logging"
)

const serviceName = "csr-style-review-cli"

func main() {
	_ = godotenv.Load()

	var guidePath, outDir string
	var quiet bool
	flag.StringVar(&guidePath, "guide", "", "style guide file (text, markdown or PDF)")
	flag.StringVar(&outDir, "out", "", "output directory (defaults to each input's directory)")
	flag.BoolVar(&quiet, "quiet", false, "suppress progress output")
	flag.Parse()
	inputs := flag.Args()
	if guidePath == "" || len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: review -guide style-guide.md [-out dir] csr1.txt [csr2.pdf ...]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(os.Stderr, serviceName, cfg.LogLevel, cfg.LogFormat))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, guidePath, outDir, inputs, quiet); err != nil {
		fmt.Fprintf(os.Stderr, "review: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, guidePath, outDir string, inputs []string, quiet bool) error {
	app, err := bootstrap.New(ctx, cfg, serviceName)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	sessionID, err := app.Service.CreateSession(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = app.Service.EndSession(context.Background(), sessionID) }()

	if !quiet {
		events, unsubscribe := app.Progress.Subscribe(sessionID)
		defer unsubscribe()
		go printProgress(os.Stderr, events)
	}

	summary, err := loadFile(ctx, guidePath, func(name, mimeType string, body io.Reader) (domain.RuleSetSummary, error) {
		return app.Service.LoadStyleGuide(ctx, sessionID, name, mimeType, body)
	})
	if err != nil {
		return fmt.Errorf("load style guide %s: %w", guidePath, err)
	}
	fmt.Printf("%s: %d rules, %d chunks dropped\n", guidePath, summary.RuleCount, len(summary.Dropped))

	var failed []error
	for _, input := range inputs {
		if err := reviewFile(ctx, app, sessionID, input, outDir); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			failed = append(failed, fmt.Errorf("%s: %w", input, err))
		}
	}
	return errors.Join(failed...)
}

func reviewFile(ctx context.Context, app *bootstrap.App, sessionID, input, outDir string) error {
	report, err := loadFile(ctx, input, func(name, mimeType string, body io.Reader) (*domain.ReviewReport, error) {
		return app.Service.ReviewDocument(ctx, sessionID, name, mimeType, body)
	})
	if err != nil {
		return err
	}

	dir := outDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	artifacts, err := usecase.Render(export.NewWriter(), report)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	for _, artifact := range artifacts {
		target := filepath.Join(dir, base+"-"+artifact.Kind+filepath.Ext(artifact.Filename))
		if err := os.WriteFile(target, artifact.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}

	stats := report.Stats()
	fmt.Printf("%s: run %s, %d/%d paragraphs changed, %d rules applied, %d unprocessed\n",
		input, report.RunID, stats.ParagraphsChanged, stats.TotalParagraphs, stats.TotalRulesApplied, stats.UnprocessedParagraphs)
	return nil
}

func loadFile[T any](ctx context.Context, path string, fn func(name, mimeType string, body io.Reader) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return fn(filepath.Base(path), mime.TypeByExtension(filepath.Ext(path)), f)
}

func printProgress(w io.Writer, events <-chan domain.ProgressEvent) {
	for event := range events {
		if event.Total > 0 {
			fmt.Fprintf(w, "[%s %s %d/%d] %s\n", event.Document, event.Phase, event.Current, event.Total, event.Message)
			continue
		}
		fmt.Fprintf(w, "[%s %s] %s\n", event.Document, event.Phase, event.Message)
	}
}
