package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"poemhub/internal/core"
	"poemhub/pkg/domain"
)

func (a *app) poemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poems",
		Short: "List, search and edit poems",
	}
	cmd.AddCommand(a.poemsListCmd(), a.poemsSearchCmd(), a.poemsShowCmd(), a.poemsAddCmd(), a.poemsDeleteCmd())
	return cmd
}

func (a *app) poemsListCmd() *cobra.Command {
	var dynasty, author, category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List poems, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var (
				poems []domain.Poem
				err   error
			)
			switch {
			case author != "":
				poems, err = a.svc.PoemsByAuthor(ctx, author)
			case category != "":
				poems, err = a.svc.PoemsByCategory(ctx, category)
			case dynasty != "":
				poems, err = a.svc.PoemsByDynasty(ctx, dynasty)
			default:
				poems, err = a.svc.ListPoems(ctx)
			}
			if err != nil {
				return err
			}
			return printPoems(cmd.OutOrStdout(), poems)
		},
	}
	cmd.Flags().StringVar(&dynasty, "dynasty", "", "only poems of this dynasty")
	cmd.Flags().StringVar(&author, "author-id", "", "only poems by this author id")
	cmd.Flags().StringVar(&category, "category-id", "", "only poems in this category id")
	cmd.MarkFlagsMutuallyExclusive("dynasty", "author-id", "category-id")
	return cmd
}

func (a *app) poemsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search titles and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poems, err := a.svc.SearchPoems(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printPoems(cmd.OutOrStdout(), poems)
		},
	}
}

func (a *app) poemsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print one poem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			poem, err := a.svc.GetPoem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", poem.Title)
			byline := poem.Dynasty
			if name := poem.AuthorName(); name != "" {
				byline = strings.TrimSpace(byline + " " + name)
			}
			if byline != "" {
				fmt.Fprintf(out, "%s\n", byline)
			}
			fmt.Fprintf(out, "\n%s\n", poem.Content)
			if len(poem.Tags) > 0 {
				fmt.Fprintf(out, "\n#%s\n", strings.Join(poem.Tags, " #"))
			}
			return nil
		},
	}
}

func (a *app) poemsAddCmd() *cobra.Command {
	var draft core.PoemDraft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a poem, creating its author when only a name is given",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			draft.Content = strings.ReplaceAll(draft.Content, `\n`, "\n")
			stores := a.stores()
			poem, ok := stores.Poems.Add(cmd.Context(), draft)
			if !ok {
				return fmt.Errorf("add poem: %s", stores.Poems.Snapshot().Error)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", poem.ID, poem.Title)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&draft.Title, "title", "", "poem title")
	flags.StringVar(&draft.Content, "content", "", "poem text; use \\n between lines")
	flags.StringVar(&draft.AuthorName, "author", "", "author name, created when missing")
	flags.StringVar(&draft.AuthorID, "author-id", "", "existing author id")
	flags.StringVar(&draft.CategoryID, "category-id", "", "category id")
	flags.StringVar(&draft.Dynasty, "dynasty", "", "dynasty label")
	flags.StringSliceVar(&draft.Tags, "tag", nil, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	cmd.MarkFlagsOneRequired("author", "author-id")
	return cmd
}

func (a *app) poemsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a poem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.svc.DeletePoem(cmd.Context(), args[0])
		},
	}
}

func printPoems(w io.Writer, poems []domain.Poem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tDYNASTY\tCATEGORY")
	for _, p := range poems {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Title, p.AuthorName(), p.Dynasty, p.CategoryName())
	}
	return tw.Flush()
}
