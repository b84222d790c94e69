package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/app"
	"github.com/actiomidia/projeto-bot-whatsapp/internal/infrastructure"
)

func newServeCmd(load configLoader) *cobra.Command {
	var (
		port        int
		noMessaging bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the realtime channel and the WhatsApp session",
		Long: `Start the bot. The WhatsApp session is opened at boot only when the stored
license is usable; otherwise it opens as soon as a key is activated through
the license page, the API or the realtime channel.`,
		Example: `  wabot serve
  wabot serve --port 8080
  WABOT_AUTHORITY_URL=https://licencas.example.com wabot serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if noMessaging {
				cfg.Messaging.Enabled = false
			}

			logger, err := infrastructure.InitializeLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			defer infrastructure.CloseLogFile()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger, app.Options{})
			if err != nil {
				logger.Error("Failed to initialize application", slog.String("error", err.Error()))
				return err
			}
			return run(ctx, a, logger)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP port (overrides server.port)")
	cmd.Flags().BoolVar(&noMessaging, "no-messaging", false, "Serve the license API only, without a WhatsApp session")

	return cmd
}

func run(ctx context.Context, a *app.Application, logger *slog.Logger) error {
	if err := a.Serve(ctx); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
