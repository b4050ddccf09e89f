package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/loykin/nodectl/internal/logger"
	"github.com/loykin/nodectl/internal/nodeserver"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type serveFlags struct {
	Port int
	Bind string
	Dir  string
}

// defaultPort honours the PORT variable nodectl exports to the node.
func defaultPort() int {
	if p, err := cast.ToIntE(os.Getenv("PORT")); err == nil && p > 0 && p <= 65535 {
		return p
	}
	return 8000
}

func newRootCommand() *cobra.Command {
	flags := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "nodeserver",
		Short: "Serve static files with health, status and metrics endpoints",
		Long: `nodeserver is a small HTTP node meant to be supervised by nodectl.

Examples:
  nodeserver --port 8000 --dir ./public
  PORT=9090 nodeserver`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *flags)
		},
	}
	cmd.Flags().IntVar(&flags.Port, "port", defaultPort(), "port to listen on")
	cmd.Flags().StringVar(&flags.Bind, "bind", "", "address to bind (default all interfaces)")
	cmd.Flags().StringVar(&flags.Dir, "dir", ".", "directory to serve")
	return cmd
}

func serve(parent context.Context, f serveFlags) error {
	if f.Port < 1 || f.Port > 65535 {
		return fmt.Errorf("port %d out of range", f.Port)
	}
	if st, err := os.Stat(f.Dir); err != nil || !st.IsDir() {
		return fmt.Errorf("serve directory %q is not accessible", f.Dir)
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.NewConsole(os.Stderr, slog.LevelInfo)
	srv := nodeserver.New(f.Dir, log)
	return srv.ListenAndServe(ctx, net.JoinHostPort(f.Bind, strconv.Itoa(f.Port)))
}
