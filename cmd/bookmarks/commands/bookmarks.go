package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sakif/smart-bookmarks/internal/model"
)

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your bookmarks, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.signedIn(cmd.Context())
			if err != nil {
				return err
			}
			return printBookmarks(cmd.OutOrStdout(), st.Bookmarks, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
	return cmd
}

// NewAddCommand creates the add command
func NewAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add TITLE URL",
		Short: "Add a bookmark",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.signedIn(cmd.Context()); err != nil {
				return err
			}
			b, err := a.client.Insert(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if b == nil {
				return fmt.Errorf("not logged in; run `bookmarks login` first")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", b.Title, b.URL)
			return nil
		},
	}
}

// NewRemoveCommand creates the rm command
func NewRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a bookmark by id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.signedIn(cmd.Context()); err != nil {
				return err
			}
			if err := a.client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printBookmarks(w io.Writer, rows []model.Bookmark, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(rows)
	case "table", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No bookmarks yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tURL\tADDED")
	for _, b := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, b.Title, b.URL, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
