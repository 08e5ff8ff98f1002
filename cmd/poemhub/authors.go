package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (a *app) authorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authors",
		Short: "List and delete authors",
	}
	var popular bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List authors with poem counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores := a.stores()
			if !stores.Authors.Fetch(cmd.Context()) {
				return fmt.Errorf("list authors: %s", stores.Authors.Snapshot().Error)
			}
			authors := stores.Authors.Snapshot().Items
			if popular {
				authors = stores.Authors.Popular()
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tDYNASTY\tPOEMS")
			for _, au := range authors {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", au.ID, au.Name, au.Dynasty, au.PoemCount)
			}
			return tw.Flush()
		},
	}
	list.Flags().BoolVar(&popular, "popular", false, "only the ten authors with most poems")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an author without poems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.DeleteAuthor(cmd.Context(), args[0])
		},
	}
	cmd.AddCommand(list, del)
	return cmd
}

func (a *app) categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List and delete categories",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List categories with poem counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores := a.stores()
			if !stores.Categories.Fetch(cmd.Context()) {
				return fmt.Errorf("list categories: %s", stores.Categories.Snapshot().Error)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPOEMS\tDESCRIPTION")
			for _, c := range stores.Categories.Snapshot().Items {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Name, c.PoemCount, c.Description)
			}
			return tw.Flush()
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category without poems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.DeleteCategory(cmd.Context(), args[0])
		},
	}
	cmd.AddCommand(list, del)
	return cmd
}
