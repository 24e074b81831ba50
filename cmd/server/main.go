package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"relaychat/internal/authfile"
	"relaychat/internal/config"
	"relaychat/internal/metrics"
	"relaychat/internal/server"
)

const usageLine = "Usage: server authfile [port]"

// exit codes per spec §6: 1 for argc/authfile errors, 2 for socket errors.
const (
	exitUsage = 1
	exitComms = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:                   "server authfile [port]",
		Short:                 "Relay chat server",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(args)
		},
	}

	if err := root.Execute(); err != nil {
		if err == errUsage {
			fmt.Fprintln(os.Stderr, usageLine)
			return exitUsage
		}
		fmt.Fprintln(os.Stderr, "Communications error")
		return exitComms
	}
	return 0
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errUsage = sentinelError(usageLine)

func runServer(args []string) error {
	secret, err := authfile.Read(args[0])
	if err != nil {
		return errUsage
	}
	port := "0"
	if len(args) == 2 {
		port = args[1]
	}

	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	srv := server.New(secret, log)

	ln, err := srv.Listen(port)
	if err != nil {
		return err
	}

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	signal.Ignore(syscall.SIGPIPE)

	reg := prometheus.NewRegistry()
	counters := metrics.NewCounters(reg, srv.Roster)
	statsSync := metrics.NewSync(counters)

	ctx := context.Background()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	g.Go(func() error {
		return srv.RunStatsReporter(gctx, reload, statsSync)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Server(gctx, cfg.MetricsAddr, reg)
		})
	}

	return g.Wait()
}
