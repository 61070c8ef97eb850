package cmd

import (
	"context"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	manuscript "github.com/emrgen/manuscript"
)

func init() {
	rootCmd.AddCommand(getDocCmd())
	rootCmd.AddCommand(listDocCmd())
	rootCmd.AddCommand(deleteDocCmd())
}

// apiClient builds the REST client from the saved context.
func apiClient() (*manuscript.Client, bool) {
	cfg := readContext()
	if cfg.Server == "" || cfg.UserID == "" {
		color.Red("missing context: run `manuscript context set -s <server> -u <user>`")
		return nil, false
	}
	return manuscript.NewClient(cfg.Server, cfg.Token, cfg.UserID), true
}

func parseDocFlag(docID string) (manuscript.DocID, bool) {
	id, err := manuscript.ParseDocID(docID)
	if err != nil {
		color.Red("invalid document id %q: %v", docID, err)
		return manuscript.DocID{}, false
	}
	return id, true
}

func getDocCmd() *cobra.Command {
	var docID string

	command := &cobra.Command{
		Use:     "get",
		Short:   "get a document",
		Example: "manuscript get -d <owner:project:doc>",
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

			doc, err := client.GetDocument(context.Background(), id)
			if err != nil {
				color.Red("%v", err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Words", "Updated"})
			table.Append([]string{doc.ID, itoa(doc.WordCount), doc.UpdatedAt.Format("2006-01-02 15:04")})
			table.Render()
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")

	return command
}

func listDocCmd() *cobra.Command {
	var owner string
	var project string

	command := &cobra.Command{
		Use:     "list",
		Short:   "list the documents of a project",
		Example: "manuscript list -o <owner> -p <project>",
		Run: func(cmd *cobra.Command, args []string) {
			if checkMissingFlags(cmd, []string{"owner", "project"}) {
				return
			}
			client, ok := apiClient()
			if !ok {
				return
			}

			docs, err := client.ListDocuments(context.Background(), owner, project)
			if err != nil {
				color.Red("%v", err)
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"ID", "Words", "Updated"})
			for _, doc := range docs {
				table.Append([]string{doc.ID, itoa(doc.WordCount), doc.UpdatedAt.Format("2006-01-02 15:04")})
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&owner, "owner", "o", "", "project owner")
	command.Flags().StringVarP(&project, "project", "p", "", "project slug")

	return command
}

func deleteDocCmd() *cobra.Command {
	var docID string

	command := &cobra.Command{
		Use:     "delete",
		Short:   "delete a document",
		Example: "manuscript delete -d <owner:project:doc>",
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

			if err := client.DeleteDocument(context.Background(), id); err != nil {
				color.Red("%v", err)
				return
			}
			color.Green("deleted %s", id)
		},
	}

	command.Flags().StringVarP(&docID, "doc-id", "d", "", "document id")

	return command
}

func checkMissingFlags(cmd *cobra.Command, required []string) bool {
	missing := false
	for _, name := range required {
		if cmd.Flag(name).Value.String() == "" {
			color.Red("missing: --%s", name)
			missing = true
		}
	}
	return missing
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
