package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voyagen/vaulttv/internal/service"
)

var (
	syncAll      bool
	syncDelta    bool
	syncParallel int
)

var syncCmd = &cobra.Command{
	Use:   "sync [provider-id]",
	Short: "Sync one provider, or every provider with --all",
	Args: func(cmd *cobra.Command, args []string) error {
		if syncAll && len(args) > 0 {
			return errors.New("--all takes no provider id")
		}
		if !syncAll && len(args) != 1 {
			return errors.New("provider id required (or --all)")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := bootstrap(ctx, nil)
		if err != nil {
			return err
		}
		defer a.close()

		mode := service.ModeFull
		if syncDelta {
			mode = service.ModeDelta
		}
		out := cmd.OutOrStdout()

		if syncAll {
			results, err := a.coord.SyncAll(ctx, mode, syncParallel)
			for _, r := range results {
				printResult(cmd, r)
			}
			fmt.Fprintf(out, "%d provider(s) synced\n", len(results))
			return err
		}
		res, err := a.coord.Sync(ctx, args[0], mode)
		if err != nil {
			return err
		}
		printResult(cmd, *res)
		return nil
	},
}

func printResult(cmd *cobra.Command, r service.SyncResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s  %-5s channels=%d added=%d removed=%d categories=%d programmes=%d (%s)\n",
		r.ProviderID, r.Mode, r.ChannelCount, r.Added, r.Removed, r.Categories, r.Programs, r.Elapsed.Round(time.Millisecond))
}

func init() {
	syncCmd.Flags().BoolVar(&syncAll, "all", false, "Sync every configured provider")
	syncCmd.Flags().BoolVar(&syncDelta, "delta", false, "Apply only id-level additions and removals")
	syncCmd.Flags().IntVar(&syncParallel, "parallel", 2, "Providers synced at once with --all")
}
