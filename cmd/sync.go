package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/emrgen/manuscript/internal/headless"
	"github.com/emrgen/manuscript/internal/localcache"
	"github.com/emrgen/manuscript/internal/transport"
)

func init() {
	rootCmd.AddCommand(syncCmd())
}

// syncCmd pushes locally cached document state without opening an editor.
func syncCmd() *cobra.Command {
	var cacheDir string
	var docIDs []string
	var concurrency int

	command := &cobra.Command{
		Use:     "sync",
		Short:   "push cached local edits to the server",
		Example: "manuscript sync -d <owner:project:doc> -d <owner:project:doc2>",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := readContext()
			if cfg.Server == "" || cfg.UserID == "" {
				color.Red("missing context: run `manuscript context set -s <server> -u <user>`")
				return
			}

			cache, err := localcache.Open(cacheDir)
			if err != nil {
				color.Red("%v", err)
				return
			}
			defer cache.Close()

			ids := docIDs
			if len(ids) == 0 {
				ids, err = cache.DirtyDocuments()
				if err != nil {
					color.Red("%v", err)
					return
				}
				if len(ids) == 0 {
					color.Green("nothing to sync")
					return
				}
			}

			resolver := &transport.StaticResolver{BaseURL: cfg.Server, Token: cfg.Token}
			coordinator := headless.NewCoordinator(cache, resolver, headless.NewHTTPStatePusher(cfg.UserID)).
				WithConcurrency(concurrency)

			result, err := coordinator.SyncDocuments(context.Background(), ids)
			if err != nil {
				color.Red("%v", err)
				return
			}

			for _, id := range result.Success {
				color.Green("synced %s", id)
			}
			for _, id := range result.Failed {
				color.Red("failed %s", id)
			}
		},
	}

	command.Flags().StringVarP(&cacheDir, "cache-dir", "c", ".manuscript-cache", "local cache directory")
	command.Flags().StringArrayVarP(&docIDs, "doc-id", "d", nil, "document ids to sync (default: all dirty)")
	command.Flags().IntVarP(&concurrency, "concurrency", "n", headless.DefaultConcurrency, "parallel pushes")

	return command
}
