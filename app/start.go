package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/middlebury/dynamic-add-users/internal/daemon"
)

func init() { //nolint: gochecknoinits
	startCmd.Flags().BoolVar(&noWeb, "no-web", false, "Run the scheduler without the admin API")

	rootCmd.AddCommand(startCmd)
}

var (
	noWeb bool

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler and the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noWeb {
				cfg.Webserver.Disabled = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return withDaemon(ctx, func(d *daemon.Daemon) error {
				return d.Run(ctx)
			})
		},
	}
)

// withDaemon builds the daemon, runs fn and closes it.
func withDaemon(ctx context.Context, fn func(d *daemon.Daemon) error) error {
	d, err := daemon.New(ctx, &cfg)
	if err != nil {
		return err
	}

	defer d.Close()

	return fn(d)
}
