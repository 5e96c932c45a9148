package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pubmed-loader/config"
	"pubmed-loader/models"
	"pubmed-loader/providers/pubmed"
	"pubmed-loader/services"
	"pubmed-loader/storage"
)

const pollInterval = 500 * time.Millisecond

type fetchOptions struct {
	term   string
	email  string
	max    int
	out    string
	upload bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Lädt alle PubMed-Treffer einer Suche und schreibt articles.json und articles.zip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runFetch(ctx, opts)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&opts.term, "term", "", "PubMed-Suchbegriff (Pflicht)")
	cmd.Flags().StringVar(&opts.email, "email", "", "Kontaktadresse für NCBI (Pflicht)")
	cmd.Flags().IntVar(&opts.max, "max", 0, "Höchstzahl an Treffern, 0 für alle")
	cmd.Flags().StringVar(&opts.out, "out", ".", "Zielverzeichnis")
	cmd.Flags().BoolVar(&opts.upload, "upload", false, "Artefakte zusätzlich in den S3-Bucket spiegeln")
	_ = cmd.MarkFlagRequired("term")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runFetch(ctx context.Context, opts *fetchOptions) error {
	logging, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store := services.NewJobStore()
	loader := services.NewLoader(store, pubmed.NewFetcher(cfg, logging), logging)
	if opts.upload {
		if !cfg.ArchiveEnabled() {
			return fmt.Errorf("--upload needs ARTIFACT_S3_BUCKET")
		}
		archive, err := storage.NewArtifactArchive(ctx, cfg)
		if err != nil {
			return err
		}
		loader.Archive = archive
	}

	id, err := loader.Create(models.SearchQuery{Term: opts.term, Email: opts.email, MaxResults: opts.max})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go reportProgress(store, id, done)
	job, err := loader.Run(ctx, id)
	close(done)
	if err != nil {
		return err
	}

	if job.Status != models.StatusCompleted {
		return fmt.Errorf("%s", job.StatusLabel())
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return err
	}
	for name, data := range map[string][]byte{
		services.ArtifactJSON.FileName(): job.Result.JSON,
		services.ArtifactZIP.FileName():  job.Result.ZIP,
	} {
		path := filepath.Join(opts.out, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}

	fmt.Printf("%d Artikel geschrieben nach %s (%d übersprungen)\n", job.Result.Articles, opts.out, job.Skipped)
	if job.Result.ZIPLink != "" {
		fmt.Println("S3:", job.Result.JSONLink, job.Result.ZIPLink)
	}
	return nil
}

// reportProgress gibt den Fortschritt aus, wie ihn auch das Frontend pollt.
func reportProgress(store *services.JobStore, id string, done <-chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	last := ""
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			job, err := store.Get(id)
			if err != nil {
				return
			}
			line := fmt.Sprintf("%s %d/%d", job.StatusLabel(), job.Progress, job.Total)
			if line != last {
				fmt.Fprintln(os.Stderr, line)
				last = line
			}
		}
	}
}
