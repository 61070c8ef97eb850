package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "manuscript",
	Short: "collaborative manuscript tool",
	Example: `manuscript serve
manuscript get -d <owner:project:doc>
manuscript list -o <owner> -p <project>
manuscript snapshot create -d <owner:project:doc> -n <name>
manuscript snapshot restore -d <owner:project:doc> -s <snapshot-id>
manuscript sync -d <owner:project:doc>`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(contextCommand)
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}
