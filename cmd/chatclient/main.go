/*
Package main is the interactive chat client.

It connects to a chat server, reads commands from standard input and prints every
server message as text. It exits 0 on /quit or end of input and 1 when the
connection cannot be established or is lost.
*/
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"linechat/internal/app/client"
	"linechat/internal/configs"
	"linechat/internal/pkg/logx"
)

const dialTimeout = 5 * time.Second

func main() {
	if err := clientCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func clientCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "chatclient [address]",
		Short:         "Connect to a chat server",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logx.InitGlobalLoggerTo(os.Stderr, verbose)
			if !verbose {
				logx.SetLevel(zerolog.WarnLevel)
			}

			addr := configs.DefaultChatAddr
			if len(args) == 1 {
				addr = args[0]
			}

			conn, err := net.DialTimeout("tcp", addr, dialTimeout)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "connected to %s\n", addr)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return client.New(conn, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log connection diagnostics to stderr")

	return cmd
}
