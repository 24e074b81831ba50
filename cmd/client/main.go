package main

import (
	"fmt"
	"net"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"relaychat/internal/authfile"
	"relaychat/internal/client"
	"relaychat/internal/config"
	"relaychat/internal/wire"
)

const usageLine = "Usage: client name authfile port"

// exit codes per spec §6/§7.
const (
	exitUsage = 1
	exitComms = 2
)

func main() {
	os.Exit(run())
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errUsage = sentinelError(usageLine)

type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit %d", int(e)) }

func run() int {
	root := &cobra.Command{
		Use:                   "client name authfile port",
		Short:                 "Relay chat client",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 3 {
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(args)
		},
	}

	if err := root.Execute(); err != nil {
		if err == errUsage {
			fmt.Fprintln(os.Stderr, usageLine)
			return exitUsage
		}
		if ec, ok := err.(exitCode); ok {
			return int(ec)
		}
		fmt.Fprintln(os.Stderr, "Communications error")
		return exitComms
	}
	return 0
}

func runClient(args []string) error {
	name, authPath, port := args[0], args[1], args[2]

	secret, err := authfile.Read(authPath)
	if err != nil {
		return errUsage
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	// zerolog carries ambient diagnostics only; the literal protocol-
	// mandated lines of §4.9 always go to stdout/stderr directly, never
	// through the structured logger.
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	addr := net.JoinHostPort("localhost", port)
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		log.Debug().Err(err).Str("addr", addr).Msg("dial failed")
		fmt.Fprintln(os.Stderr, "Communications error")
		return exitCode(exitComms)
	}
	log.Debug().Str("addr", addr).Msg("connected")
	conn := wire.NewConn(nc)
	defer conn.Close()

	c := client.New(conn, name, secret, os.Stdin, os.Stdout, os.Stderr)
	return exitCode(c.Run())
}
