package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
)

var (
	lockTTL  time.Duration
	lockWait time.Duration

	runCmd = &cobra.Command{
		Use:   "run [key] -- [command] [args...]",
		Short: "Run a command while holding a lock",
		Long: `Acquire the lock, run the command and release the lock once the command
exits. The command's exit status becomes latch's exit status.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runRun,
	}

	tryCmd = &cobra.Command{
		Use:   "try [key]",
		Short: "Make a single attempt to take a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runTry,
	}

	acquireCmd = &cobra.Command{
		Use:   "acquire [key]",
		Short: "Wait for a lock and print its token",
		Long: `Wait for the lock and print the token that owns it. The lock stays held
until it is released with "latch release" or its TTL elapses.`,
		Args: cobra.ExactArgs(1),
		RunE: runAcquire,
	}

	releaseCmd = &cobra.Command{
		Use:   "release [key] [token]",
		Short: "Release a lock using the token printed by acquire or try",
		Args:  cobra.ExactArgs(2),
		RunE:  runRelease,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect [key]",
		Short: "Show the token currently holding a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	forceReleaseCmd = &cobra.Command{
		Use:   "force-release [key]",
		Short: "Delete a lock regardless of its holder",
		Args:  cobra.ExactArgs(1),
		RunE:  runForceRelease,
	}
)

// exitCodeError carries the exit status of a command run under a lock.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

func init() {
	for _, c := range []*cobra.Command{runCmd, tryCmd, acquireCmd} {
		c.Flags().DurationVar(&lockTTL, "ttl", 30*time.Second, "expiry of the lock")
	}
	for _, c := range []*cobra.Command{runCmd, acquireCmd} {
		c.Flags().DurationVar(&lockWait, "wait", 0, "give up after waiting this long (0 waits forever)")
	}
	rootCmd.AddCommand(runCmd, tryCmd, acquireCmd, releaseCmd, inspectCmd, forceReleaseCmd)
}

func waitContext(parent context.Context) (context.Context, context.CancelFunc) {
	if lockWait > 0 {
		return context.WithTimeout(parent, lockWait)
	}
	return context.WithCancel(parent)
}

func runRun(cmd *cobra.Command, args []string) error {
	key := args[0]
	ctx := cmd.Context()

	wctx, cancel := waitContext(ctx)
	h, err := latch.Locker.Acquire(wctx, key, lockTTL)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", key, err)
	}
	slog.Info("latch: lock acquired", "key", key, "token", h.Token())

	child := exec.CommandContext(ctx, args[1], args[2:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	runErr := child.Run()

	if err := latch.Locker.Release(context.WithoutCancel(ctx), h); err != nil {
		slog.Error("latch: release failed", "key", key, "error", err)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return &exitCodeError{code: exitErr.ExitCode()}
	}
	return runErr
}

func runTry(cmd *cobra.Command, args []string) error {
	h, ok, err := latch.Locker.TryLock(cmd.Context(), args[0], lockTTL)
	if err != nil {
		return fmt.Errorf("try %s: %w", args[0], err)
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "acquired=false")
		return &exitCodeError{code: 2}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acquired=true token=%s\n", h.Token())
	return nil
}

func runAcquire(cmd *cobra.Command, args []string) error {
	ctx, cancel := waitContext(cmd.Context())
	defer cancel()
	h, err := latch.Locker.Acquire(ctx, args[0], lockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acquired=true token=%s\n", h.Token())
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	h := latch.Locker.Restore(args[0], args[1])
	if err := latch.Locker.Release(cmd.Context(), h); err != nil {
		return fmt.Errorf("release %s: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "released=true")
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	token, ok, err := latch.Locker.Inspect(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "held=false")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "held=true token=%s\n", token)
	return nil
}

func runForceRelease(cmd *cobra.Command, args []string) error {
	if err := latch.Locker.ForceRelease(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("force-release %s: %w", args[0], err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "released=true")
	return nil
}
