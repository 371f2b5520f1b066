package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/axondata/go-hotrun"
)

type rootOptions struct {
	watch       bool
	exec        string
	config      string
	verbose     bool
	logFormat   string
	backend     string
	grace       time.Duration
	settle      time.Duration
	stopTimeout time.Duration
	metricsAddr string
	pidFile     string
}

// exitCodeError carries a child's exit code out of a single, unwatched run
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func runRoot(cmd *cobra.Command, args []string, opts *rootOptions) error {
	fc := &hotrun.FileConfig{}
	if opts.config != "" {
		loaded, err := hotrun.LoadConfig(opts.config)
		if err != nil {
			return err
		}
		fc = loaded
	}

	entry := fc.Entry
	if len(args) > 0 {
		entry = args[0]
		if len(args) > 1 {
			fc.Args = args[1:]
		}
	}
	if entry == "" {
		return errors.New("an entry file is required")
	}

	logger, err := newLogger(cmd, fc, opts)
	if err != nil {
		return err
	}

	hopts := fc.Options()
	flags := cmd.Flags()
	if flags.Changed("exec") {
		hopts = append(hopts, hotrun.WithInterpreter(strings.Fields(opts.exec)...))
	}
	if flags.Changed("backend") {
		b, err := hotrun.ParseBackend(opts.backend)
		if err != nil {
			return err
		}
		hopts = append(hopts, hotrun.WithBackend(b))
	}
	if flags.Changed("grace") {
		hopts = append(hopts, hotrun.WithGracePeriod(opts.grace))
	}
	if flags.Changed("settle") {
		hopts = append(hopts, hotrun.WithSettleDelay(opts.settle))
	}
	if flags.Changed("stop-timeout") {
		hopts = append(hopts, hotrun.WithStopTimeout(opts.stopTimeout))
	}
	hopts = append(hopts, hotrun.WithLogger(logger), hotrun.WithStderr(cmd.ErrOrStderr()))

	metricsAddr := fc.MetricsAddr
	if flags.Changed("metrics-addr") {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		m, stop, err := serveMetrics(metricsAddr, logger)
		if err != nil {
			return err
		}
		defer stop()
		hopts = append(hopts, hotrun.WithMetrics(m))
	}

	pidFile := fc.PIDFile
	if flags.Changed("pid-file") {
		pidFile = opts.pidFile
	}
	if pidFile != "" {
		if err := renameio.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), hotrun.FileMode); err != nil {
			return fmt.Errorf("writing pid file: %w", err)
		}
		defer os.Remove(pidFile)
	}

	sup, err := hotrun.New(entry, hopts...)
	if err != nil {
		return err
	}

	watch := fc.Watch
	if flags.Changed("watch") {
		watch = opts.watch
	}

	ctx := cmd.Context()
	if !watch {
		code, err := sup.RunOnce(ctx, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if code != 0 {
			return &exitCodeError{code: code}
		}
		return nil
	}

	return supervise(ctx, sup, cmd.OutOrStdout(), logger)
}

func supervise(ctx context.Context, sup *hotrun.Supervisor, out io.Writer, logger logrus.FieldLogger) error {
	if err := sup.Start(ctx); err != nil {
		return err
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for line := range sup.Output() {
			fmt.Fprintln(out, line.Text)
		}
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- sup.Wait()
	}()

	var err error
	select {
	case err = <-waitErr:
	case <-ctx.Done():
		logger.Info("shutting down")
		if stopErr := sup.Stop(); stopErr != nil {
			logger.WithError(stopErr).Warn("teardown")
		}
		err = <-waitErr
	}

	select {
	case <-printed:
	case <-time.After(time.Second):
	}
	return err
}

func newLogger(cmd *cobra.Command, fc *hotrun.FileConfig, opts *rootOptions) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())

	level := logrus.InfoLevel
	if fc.LogLevel != "" {
		parsed, err := logrus.ParseLevel(fc.LogLevel)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	if opts.verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	format := opts.logFormat
	if fc.LogFormat != "" && !cmd.Flags().Changed("log-format") {
		format = fc.LogFormat
	}
	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return logger, nil
}

func serveMetrics(addr string, logger logrus.FieldLogger) (*hotrun.Metrics, func(), error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m, err := hotrun.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server")
		}
	}()
	logger.WithField("addr", addr).Info("serving metrics")

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return m, stop, nil
}
