// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ManuGH/actionprobe/internal/domain/action"
	"github.com/ManuGH/actionprobe/internal/session"
)

func newFetchCmd(o *rootOptions) *cobra.Command {
	var (
		force  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the listing of the configured city",
		Long: `Fetches the listing of the configured city. A cached listing younger
than the listing TTL is used unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, o.cfg)
			if err != nil {
				return err
			}
			defer closeRuntime(ctx, rt, &err)

			l, err := rt.svc.FetchListing(ctx, "", force)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(o.out)
				enc.SetIndent("", "  ")
				return enc.Encode(l)
			}
			writeListing(o.out, l, o.cfg.API.SiteURL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the cached listing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the listing as JSON")
	return cmd
}

func writeListing(w io.Writer, l session.Listing, site string) {
	source := "remote"
	if l.Cached {
		source = "cache"
	}
	fmt.Fprintf(w, "city %s: %d actions (%s, stored %s)\n",
		l.CityID, len(l.Actions), source, l.StoredAt.Local().Format("2006-01-02 15:04"))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTART\tVENUE\tMIN\tMAX\tURL")
	for _, a := range l.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Name, startTime(a), venueName(a), price(a.MinPrice), price(a.MaxPrice), a.URL(site))
	}
	_ = tw.Flush()
}

func venueName(a action.Action) string {
	id := a.PrimaryVenueID()
	if name := a.Venues[id]; name != "" {
		return name
	}
	return id
}

func startTime(a action.Action) string {
	if a.StartTime.IsZero() {
		return a.Time
	}
	return a.StartTime.Format("2006-01-02 15:04")
}

func price(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
