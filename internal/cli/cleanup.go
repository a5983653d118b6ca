package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/fermo-metabolomics/fermo-srv/internal/config"
	"github.com/fermo-metabolomics/fermo-srv/internal/workspace"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete job workspaces older than the retention age",
		Long: `Removes every job workspace under the upload root whose directory
modification time is older than the configured retention_days. Run this
periodically, e.g. from a cron entry or systemd timer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}

			layout := workspace.NewLayout(cfg.UploadRoot)
			maxAge := time.Duration(cfg.RetentionDays) * 24 * time.Hour

			removed, err := layout.Sweep(maxAge, time.Now(), logger)
			if err != nil {
				return err
			}
			logger.Info().Int("removed", removed).Int("retention_days", cfg.RetentionDays).Msg("Retention sweep finished")
			return nil
		},
	}
}
