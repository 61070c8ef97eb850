package cmd

import (
	"github.com/emrgen/manuscript/internal/config"
	"github.com/emrgen/manuscript/internal/server"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd())
}

func serveCmd() *cobra.Command {
	var port string
	command := &cobra.Command{
		Use:   "serve",
		Short: "start the manuscript server",
		Run: func(cmd *cobra.Command, args []string) {
			if port == "" {
				port = config.LoadConfig().HTTPPort
			}
			server.NewServer(port).Start()
		},
	}

	command.Flags().StringVarP(&port, "port", "p", "", "http port")

	return command
}
