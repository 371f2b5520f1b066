// Command hotrun runs a program and restarts it whenever its entry file changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/axondata/go-hotrun"
)

// newRootCmd builds the hotrun command with its flags bound to a fresh
// set of options
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hotrun [flags] <entry> [-- args...]",
		Short: "Run a program and restart it when its entry file changes",
		Long: `hotrun launches <entry> as a child process. With --watch it keeps
watching the entry file and restarts the child whenever the file is
overwritten, deleted and recreated, or replaced by an atomic rename.

Each child receives HOTRUN_GENERATION (0 for the first run, then 1, 2, ...)
and HOTRUN_ENTRY in its environment.`,
		Version:       hotrun.Version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.watch, "watch", "w", false, "Restart the program when the entry file changes")
	flags.StringVarP(&opts.exec, "exec", "e", "", "Interpreter to run the entry with (e.g. \"node\" or \"sh\")")
	flags.StringVarP(&opts.config, "config", "c", "", "Config file (.yaml, .yml or .toml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	flags.StringVar(&opts.backend, "backend", "", "Notification backend: fsnotify or notify")
	flags.DurationVar(&opts.grace, "grace", 0, "How long a deleted entry may stay absent before it counts as removed")
	flags.DurationVar(&opts.settle, "settle", 0, "Debounce applied to change notifications")
	flags.DurationVar(&opts.stopTimeout, "stop-timeout", 0, "How long a child gets to exit after SIGTERM before it is killed")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	flags.StringVar(&opts.pidFile, "pid-file", "", "Write the supervisor PID to this file")

	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			cancel()
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
