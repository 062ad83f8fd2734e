package main

import (
	"os"
	"os/signal"
	"syscall"

	"task-agent/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd(args *rootArgs) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API (/run, /read, /ask, /operations, /health, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				args.overrides = append(args.overrides, "listen="+listen)
			}
			a, err := newApp(args)
			if err != nil {
				return err
			}
			defer a.Close()

			gin.SetMode(gin.ReleaseMode)
			srv := server.New(a.dispatcher, a.classifier, a.registry, a.root, server.Options{
				Addr:           a.cfg.Listen,
				CORSOrigins:    a.cfg.CORSOrigins,
				TrustedProxies: a.cfg.TrustedProxies,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config, :8000)")
	return cmd
}
