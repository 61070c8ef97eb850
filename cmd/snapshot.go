package cmd

import (
	"context"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "snapshot commands",
}

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	snapshotCmd.AddCommand(createSnapshotCmd())
	snapshotCmd.AddCommand(listSnapshotsCmd())
	snapshotCmd.AddCommand(deleteSnapshotCmd())
	snapshotCmd.AddCommand(restoreSnapshotCmd())
}

func createSnapshotCmd() *cobra.Command {
	var docID string
	var name string
	var description string

	command := &cobra.Command{
		Use:     "create",
		Short:   "create a snapshot of a document",
		Example: "manuscript snapshot create -d <owner:project:doc> -n <name>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"doc-id", "name"}) {
				return
			}
			id, ok := parseDocFlag(docID)
			if !ok {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			snap, err := client.CreateSnapshot(context.Background(), id, name, description, nil)
			if err != nil {
				color.Red("%v", err)
				return
			}
			color.Green("created snapshot %s", snap.ID)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")
	command.Flags().StringVarP(&name, "name", "n", "", "snapshot name")
	command.Flags().StringVarP(&description, "description", "m", "", "snapshot description")

	return command
}

func listSnapshotsCmd() *cobra.Command {
	var docID string
	var limit int
	var offset int

	command := &cobra.Command{
		Use:     "list",
		Short:   "list the snapshots of a document",
		Example: "manuscript snapshot list -d <owner:project:doc>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"doc-id"}) {
				return
			}
			id, ok := parseDocFlag(docID)
			if !ok {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			snaps, total, err := client.ListSnapshots(context.Background(), id, limit, offset)
			if err != nil {
				color.Red("%v", err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Name", "Words", "Created"})
			for _, snap := range snaps {
				table.Append([]string{snap.ID, snap.Name, itoa(snap.WordCount), snap.CreatedAt.Format("2006-01-02 15:04")})
			}
			table.SetCaption(true, "total: "+itoa(int(total)))
			table.Render()
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")
	command.Flags().IntVarP(&limit, "limit", "l", 20, "page size")
	command.Flags().IntVarP(&offset, "offset", "f", 0, "page offset")

	return command
}

func deleteSnapshotCmd() *cobra.Command {
	var docID string
	var snapshotID string

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete a snapshot",
		Example: "manuscript snapshot delete -d <owner:project:doc> -s <snapshot-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"doc-id", "snapshot-id"}) {
				return
			}
			id, ok := parseDocFlag(docID)
			if !ok {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			if err := client.DeleteSnapshot(context.Background(), id, snapshotID); err != nil {
				color.Red("%v", err)
				return
			}
			color.Green("deleted snapshot %s", snapshotID)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")
	command.Flags().StringVarP(&snapshotID, "snapshot-id", "s", "", "snapshot id")

	return command
}

func restoreSnapshotCmd() *cobra.Command {
	var docID string
	var snapshotID string

	command := &cobra.Command{
		Use:     "restore",
		Short:   "restore a document to a snapshot",
		Example: "manuscript snapshot restore -d <owner:project:doc> -s <snapshot-id>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"doc-id", "snapshot-id"}) {
				return
			}
			id, ok := parseDocFlag(docID)
			if !ok {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			result, err := client.RestoreSnapshot(context.Background(), id, snapshotID)
			if err != nil {
				color.Red("%v", err)
				return
			}
			color.Green("restored %s from snapshot %s at %s",
				result.DocumentID, result.RestoredFrom, result.RestoredAt.Format("15:04:05"))
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")
	command.Flags().StringVarP(&snapshotID, "snapshot-id", "s", "", "snapshot id")

	return command
}
