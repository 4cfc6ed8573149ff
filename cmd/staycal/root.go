package main

import (
	"time"

	"github.com/spf13/cobra"

	"staycal/internal/config"
	appLog "staycal/internal/log"
)

type rootOptions struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "staycal",
		Short: "Vacation rental booking site with a date-range availability engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			appLog.Init(cfg.Env, appLog.ParseLevel(cfg.LogLevel))
			opts.cfg = cfg
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "./staycal.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, error)")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(parseCmd(opts))
	root.AddCommand(exportCmd(opts))
	return root
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}
