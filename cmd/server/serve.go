package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tyrowin/linechat/internal/server"
)

func serveCmd() *cobra.Command {
	cfg := server.NewConfigFromEnv()
	var windowMS int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay",
		Long: `Run the chat relay. Settings come from the environment (and a .env
file in the working directory); flags override them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("rate-window-ms") {
				cfg.RateLimit.Window = time.Duration(windowMS) * time.Millisecond
			}

			logger := setupLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv := server.New(*cfg, logger)
			logger.Info("starting chat relay", "version", version, "tcp", srv.Config().Port, "http", srv.Config().HTTPAddr)
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.Port, "port", "p", cfg.Port, "TCP listen address for line clients")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address for /ws, /health, /stats and /metrics (empty disables)")
	flags.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", cfg.AllowedOrigins, "origins allowed to open the WebSocket gateway (* allows all)")
	flags.IntVar(&windowMS, "rate-window-ms", int(cfg.RateLimit.Window/time.Millisecond), "rate limit window in milliseconds")
	flags.IntVar(&cfg.RateLimit.MaxMessages, "rate-max-messages", cfg.RateLimit.MaxMessages, "chat messages allowed per window")
	flags.IntVar(&cfg.MinNameLength, "min-name-length", cfg.MinNameLength, "shortest accepted name")
	flags.IntVar(&cfg.MaxNameLength, "max-name-length", cfg.MaxNameLength, "longest accepted name")
	flags.IntVar(&cfg.MaxMessageLength, "max-message-length", cfg.MaxMessageLength, "longest accepted chat message")
	flags.IntVar(&cfg.SendBuffer, "send-buffer", cfg.SendBuffer, "queued outbound messages per client before it is dropped")
	flags.BoolVar(&cfg.EchoSelfLabel, "echo-self-label", cfg.EchoSelfLabel, `label the sender's own echo "You"`)
	flags.BoolVar(&cfg.AutoHelp, "auto-help", cfg.AutoHelp, "send /help output after a client picks a name")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long to wait for clients on shutdown")

	return cmd
}
