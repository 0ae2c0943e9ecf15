package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirkobrombin/go-latch/v1/presets"
)

const Version = "0.1.0"

var (
	latch     *presets.Latch
	telemetry *telemetryState

	rootCmd = &cobra.Command{
		Use:   "latch",
		Short: "distributed locks and unique ids on a shared store",
		Long: fmt.Sprintf(`latch (v%s)

Take and release mutual-exclusion locks shared by processes on different
machines, and hand out unique 64-bit identifiers, using Redis or NATS
JetStream as the single source of truth.`, Version),
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	versionCmd = &cobra.Command{
		Use:                "version",
		Short:              "Print the version number of latch",
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "latch v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd)
	addConfigFlags(rootCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	telemetry, err = startTelemetry(cfg)
	if err != nil {
		return err
	}
	latch, err = openLatch(cfg, logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return nil
}

func teardown(*cobra.Command, []string) error {
	var errs []error
	if latch != nil {
		errs = append(errs, latch.Close())
		latch = nil
	}
	if telemetry != nil {
		errs = append(errs, telemetry.shutdown(context.Background()))
		telemetry = nil
	}
	return errors.Join(errs...)
}

// Execute adds all child commands to the root command and runs it. A wrapped
// command's exit status is passed through.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	// post-run hooks are skipped when a command fails
	_ = teardown(rootCmd, nil)
	os.Exit(reportError(rootCmd.ErrOrStderr(), err))
}

// reportError prints err unless it only carries an exit status, and returns
// the status the process should exit with.
func reportError(w io.Writer, err error) int {
	var exitErr *exitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
