// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/actionprobe/internal/config"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			data, err := yaml.Marshal(config.ToFile(config.Redacted(o.cfg)))
			if err != nil {
				return err
			}
			_, err = o.out.Write(data)
			return err
		},
	}, &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			source := "environment and defaults"
			if p := o.loader.Path(); p != "" {
				source = p
			}
			fmt.Fprintf(o.out, "configuration OK (%s)\n", source)
			return nil
		},
	})
	return cmd
}
