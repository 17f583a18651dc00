package app

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/middlebury/dynamic-add-users/internal/daemon"
	"github.com/middlebury/dynamic-add-users/internal/groupsync"
	"github.com/middlebury/dynamic-add-users/internal/role"
)

func init() { //nolint: gochecknoinits
	syncGroupCmd.Flags().Uint64Var(&syncSite, "site", 0, "Site id")
	syncGroupCmd.Flags().StringVar(&syncGroup, "group", "", "External group id")
	syncGroupCmd.Flags().StringVar(&syncRole, "role", "", "Role to grant, defaults to the registered role")
	syncGroupCmd.Flags().StringVar(&syncLabel, "label", "", "Group label")
	_ = syncGroupCmd.MarkFlagRequired("site")
	_ = syncGroupCmd.MarkFlagRequired("group")

	syncCmd.PersistentFlags().BoolVar(&syncJSON, "json", false, "Print the change log as JSON")

	syncCmd.AddCommand(syncAllCmd, syncGroupCmd, syncUserCmd)
	rootCmd.AddCommand(syncCmd)
}

var (
	syncSite  uint64
	syncGroup string
	syncRole  string
	syncLabel string
	syncJSON  bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Run a sync once and print the changes",
	}

	syncAllCmd = &cobra.Command{
		Use:   "all",
		Short: "Sync every registered group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(cmd.Context(), func(d *daemon.Daemon) error {
				if err := d.Seed(cmd.Context()); err != nil {
					return err
				}

				summary, err := d.BulkSync(cmd.Context(), daemon.TriggerCLI)
				if err != nil {
					return err
				}

				return printResult(cmd.OutOrStdout(), summary, fmt.Sprintf(
					"%d groups, %d failed: %d added, %d upgraded, %d removed, %d skipped",
					summary.Groups, summary.FailedGroups, summary.Added,
					summary.Upgraded, summary.Removed, summary.FailedUsers,
				))
			})
		},
	}

	syncGroupCmd = &cobra.Command{
		Use:   "group",
		Short: "Sync one group into one site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDaemon(cmd.Context(), func(d *daemon.Daemon) error {
				r, label := role.Role(syncRole), syncLabel

				if r == role.None {
					reg, err := d.Engine.Registration(cmd.Context(), syncSite, syncGroup)
					if err != nil {
						return err
					}

					r = reg.Role

					if label == "" {
						label = reg.GroupLabel
					}
				}

				changes, err := d.Engine.SyncOneGroup(cmd.Context(), syncSite, syncGroup, r, label)
				if err != nil {
					return err
				}

				return printChanges(cmd.OutOrStdout(), changes)
			})
		},
	}

	syncUserCmd = &cobra.Command{
		Use:   "user <login>",
		Short: "Sync the groups of one user like a login does",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDaemon(cmd.Context(), func(d *daemon.Daemon) error {
				res, err := d.SyncUser(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				if res.Notice != "" && !syncJSON {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Notice)

					return err //nolint:wrapcheck
				}

				if syncJSON {
					return printResult(cmd.OutOrStdout(), res, "")
				}

				return printChanges(cmd.OutOrStdout(), res.Changes)
			})
		},
	}
)

func printChanges(w io.Writer, changes []groupsync.Change) error {
	if syncJSON {
		if changes == nil {
			changes = []groupsync.Change{}
		}

		return printResult(w, changes, "")
	}

	if len(changes) == 0 {
		_, err := fmt.Fprintln(w, "No changes.")

		return err //nolint:wrapcheck
	}

	for _, m := range groupsync.Messages(changes) {
		if _, err := fmt.Fprintln(w, m); err != nil {
			return err //nolint:wrapcheck
		}
	}

	return nil
}

func printResult(w io.Writer, v any, text string) error {
	if !syncJSON {
		_, err := fmt.Fprintln(w, text)

		return err //nolint:wrapcheck
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v) //nolint:wrapcheck
}
