// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCacheCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache",
	}
	cmd.AddCommand(newCacheShowCmd(o), newCacheClearCmd(o))
	return cmd
}

func newCacheShowCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "List the cached listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, &err)

			summaries, err := rt.svc.Listings(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(o.out, "no cached listings")
				return nil
			}
			tw := tabwriter.NewWriter(o.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CITY\tACTIONS\tSTORED\tVALID")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%t\n",
					s.CityID, s.Actions, s.StoredAt.Local().Format("2006-01-02 15:04:05"), s.Valid)
			}
			return tw.Flush()
		},
	}
}

func newCacheClearCmd(o *rootOptions) *cobra.Command {
	var prefix string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached entries",
		Long: `Removes cached entries. --city drops the listing and every detail of
one city, --prefix removes raw keys starting with the prefix. Without either
flag the whole cache is cleared.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			byCity := cmd.Flags().Changed("city")
			if prefix != "" && byCity {
				return errors.New("--prefix and --city are mutually exclusive")
			}
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, &err)

			if byCity {
				n, err := rt.svc.ClearCity(ctx, o.cfg.CityID)
				if err != nil {
					return err
				}
				fmt.Fprintf(o.out, "cleared listing and %d details of city %s\n", n, o.cfg.CityID)
				return nil
			}
			n, err := rt.svc.ClearCache(ctx, prefix)
			if err != nil {
				return err
			}
			fmt.Fprintf(o.out, "removed %d entries\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only remove keys with this prefix")
	return cmd
}
