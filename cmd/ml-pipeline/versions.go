package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"marketml/internal/dataset"
)

func newVersionsCmd(opts *rootOptions) *cobra.Command {
	var (
		desc       descriptorFlags
		typ        string
		withLatest bool
	)

	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List cached versions of a dataset, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, opts, "versions", func(ctx context.Context, a *app) error {
				cache, err := a.datasetCache(ctx)
				if err != nil {
					return err
				}
				d := desc.descriptor(dataset.Type(typ), "")
				versions, err := cache.ListVersions(d, withLatest)
				if err != nil {
					return err
				}
				if len(versions) == 0 {
					a.log.Info("no cached versions", "dataset", d.String())
					return nil
				}
				for _, v := range versions {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
				return nil
			})
		},
	}

	desc.bind(cmd)
	cmd.Flags().StringVar(&typ, "type", string(dataset.TypeRaw), "dataset type: raw or features")
	cmd.Flags().BoolVar(&withLatest, "all", false, "include the latest alias")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}
