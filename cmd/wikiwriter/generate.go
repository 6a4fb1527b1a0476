package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/wikiwriter/config"
	"github.com/mohammad-safakhou/wikiwriter/internal/runs"
	srv "github.com/mohammad-safakhou/wikiwriter/internal/server"
	"github.com/mohammad-safakhou/wikiwriter/internal/store"
)

func generateCMD(cfgPath *string) *cobra.Command {
	var topic, language, outDir string
	var generate = &cobra.Command{
		Use:   "generate",
		Short: "Generate one article synchronously and write report.md and report.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			lang, err := runs.NormalizeLanguage(language)
			if err != nil {
				return fmt.Errorf("--language: %w", err)
			}
			cfg, err := config.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			configureLogging(cfg.General)
			// artifacts go to --out instead of a per-run directory
			cfg.Runs.ArtifactsDir = ""

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := srv.NewApp(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer app.Close()

			return generateOne(ctx, app, topic, lang, outDir, cmd.OutOrStdout())
		},
	}
	generate.Flags().StringVarP(&topic, "topic", "t", "", "article topic")
	generate.Flags().StringVarP(&language, "language", "l", "en", "article language (en or pt)")
	generate.Flags().StringVarP(&outDir, "out", "o", "output", "directory for report.md and report.json")

	return generate
}

func generateOne(ctx context.Context, app *srv.App, topic, language, outDir string, out io.Writer) error {
	job := runs.Job{RunID: runs.NewRunID(), Topic: topic, Language: language}
	if err := app.Store.Create(ctx, store.NewRecord(job.RunID, topic, language)); err != nil {
		return err
	}
	app.Executor.Execute(ctx, job)

	rec, err := app.Store.Get(ctx, job.RunID)
	if err != nil {
		return err
	}
	if rec.Status != store.StatusFinished {
		return fmt.Errorf("run %s %s: %s", rec.ID, rec.Status, runs.PublicError(rec.Error))
	}
	if err := runs.WriteArtifacts(outDir, rec.Article); err != nil {
		return fmt.Errorf("write artifacts: %w", err)
	}
	fmt.Fprintf(out, "%s (%d words) -> %s\n", rec.Article.Title, rec.Article.WordCount, filepath.Join(outDir, "report.md"))
	return nil
}
