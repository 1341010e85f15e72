// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"soukou/internal/config"
	applog "soukou/internal/log"
	"soukou/pkg/build"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.Current()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         "Streaming audio analysis: spectrum, level, onsets and pitch",
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Configuration file. Defaults to "+config.DefaultPath+" when present")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newPlayCommand(opts),
		newAnalyzeCommand(opts),
		newInfoCommand(opts),
		newDevicesCommand(opts),
	)
	return rootCmd
}

// load reads the configuration and applies the logging flags.
func (o *options) load() error {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	applog.SetLevel(level)
	o.cfg = cfg
	return nil
}

// Execute runs the command line with ctx, which is cancelled on shutdown
// signals.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}
