package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fermo-metabolomics/fermo-srv/internal/antismash"
	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/engine"
	"github.com/fermo-metabolomics/fermo-srv/internal/notify"
	"github.com/fermo-metabolomics/fermo-srv/internal/params"
	"github.com/fermo-metabolomics/fermo-srv/internal/runner"
	"github.com/fermo-metabolomics/fermo-srv/internal/server"
	"github.com/fermo-metabolomics/fermo-srv/internal/submit"
	"github.com/fermo-metabolomics/fermo-srv/internal/task"
	"github.com/fermo-metabolomics/fermo-srv/internal/upload"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

func newServeCmd() *cobra.Command {
	var engineBinary string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP submission service and worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(engineBinary)
		},
	}

	cmd.Flags().StringVar(&engineBinary, "engine", "fermo_core", "Analysis engine executable")
	return cmd
}

func runServe(engineBinary string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.EnsureUploadRoot(); err != nil {
		return err
	}

	layout := workspace.NewLayout(cfg.UploadRoot)
	schema, err := params.NewSchemaValidator()
	if err != nil {
		return err
	}

	fetcher := antismash.NewClient(cfg, logger)
	notifier := notify.NewNotifier(cfg, logger)
	jobRunner := runner.New(cfg, layout, engine.Command(engineBinary), fetcher, notifier, logger)

	// The queue gets its own lifetime: on shutdown the channel is closed
	// and drained so accepted jobs still run to a terminal state.
	queue := task.NewQueue(cfg.QueueSize, jobRunner.Run, logger)
	queue.Start(context.Background(), cfg.Workers)

	orch := submit.NewOrchestrator(cfg, layout,
		upload.NewIngestor(cfg, logger), fetcher, schema,
		params.NewModuleValidator(cfg), queue, logger)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(cfg, layout, orch, logger).Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("upload_root", cfg.UploadRoot).
			Bool("online", cfg.Online).
			Int("workers", cfg.Workers).
			Msg("fermo-srv listening")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		queue.Shutdown()
		return err
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}

	queue.Shutdown()
	return nil
}
