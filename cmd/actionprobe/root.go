// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ManuGH/actionprobe/internal/config"
	xglog "github.com/ManuGH/actionprobe/internal/log"
	"github.com/ManuGH/actionprobe/internal/version"
)

// rootOptions is shared by all subcommands. cfg is populated by the root's
// PersistentPreRunE before any RunE executes.
type rootOptions struct {
	configPath string
	cityID     string
	logLevel   string

	loader *config.Loader
	cfg    config.AppConfig

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	o := &rootOptions{out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "actionprobe",
		Short:         "Probe ticket availability across a city's event listing",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return o.load()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "path to config file (YAML)")
	flags.StringVar(&o.cityID, "city", "", "city id (overrides config)")
	flags.StringVar(&o.logLevel, "log-level", "", "log level (overrides config)")

	cmd.AddCommand(
		newServeCmd(o),
		newFetchCmd(o),
		newProbeCmd(o),
		newCacheCmd(o),
		newConfigCmd(o),
		newVersionCmd(o),
	)
	return cmd
}

// load resolves the configuration, applies flag overrides and configures logging.
func (o *rootOptions) load() error {
	o.loader = config.NewLoader(o.configPath, version.Version)
	cfg, err := o.loader.Load()
	if err != nil {
		return err
	}
	if o.cityID != "" {
		cfg.CityID = o.cityID
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.cityID != "" || o.logLevel != "" {
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}
	}
	o.cfg = cfg
	o.configureLogging(cfg)
	return nil
}

func (o *rootOptions) configureLogging(cfg config.AppConfig) {
	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Output:  o.errOut,
		Version: version.Version,
	})
}
