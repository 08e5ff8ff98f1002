package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"poemhub/internal/blob"
	"poemhub/internal/export"
)

func (a *app) exportCmd() *cobra.Command {
	var (
		formats []string
		list    bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the anthology to blob storage as JSON and CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := blob.Open(ctx, a.cfg.Blob)
			if err != nil {
				return err
			}
			exporter := export.New(a.svc, store, export.WithLogger(a.logger))
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if list {
				infos, err := exporter.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
				for _, info := range infos {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.Format("2006-01-02 15:04:05"))
				}
				return tw.Flush()
			}

			parsed := make([]export.Format, 0, len(formats))
			for _, raw := range formats {
				f, err := export.ParseFormat(raw)
				if err != nil {
					return err
				}
				parsed = append(parsed, f)
			}
			artifacts, err := exporter.Export(ctx, parsed...)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "KEY\tFORMAT\tPOEMS\tBYTES\tURL")
			for _, art := range artifacts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", art.Key, art.Format, art.Poems, art.SizeBytes, art.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringSliceVar(&formats, "format", nil, "json or csv (repeatable, default both)")
	cmd.Flags().BoolVar(&list, "list", false, "list earlier exports instead of writing one")
	return cmd
}
