// -- cmd/serve.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/internal/observability"
	"github.com/xkilldash9x/gptrelay/internal/service"
	"github.com/xkilldash9x/gptrelay/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the browser session and serve the HTTP API",
	Long: `serve launches the browser, signs the page in with the configured session
token, and serves POST /chat until interrupted. The session opens once at
startup; if the credential is missing or the browser cannot launch, serve
exits instead of limping along without an upstream.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	cfg := loadedConfig
	logger := observability.GetLogger()
	logger.Info("starting gptrelay",
		zap.String("version", Version),
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("base_url", cfg.Session.BaseURL))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components := service.Build(cfg, logger)

	if err := components.Session.Open(ctx); err != nil {
		if errors.Is(err, session.ErrNoCredential) {
			return fmt.Errorf("set GPTRELAY_SESSION_TOKEN (or CHATGPT_SESSION_TOKEN) before starting the server: %w", err)
		}
		return fmt.Errorf("opening browser session: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- components.Server.ListenAndServe()
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		// The listener only returns on its own when something is wrong; a
		// clean Shutdown comes through as nil after we trigger it below.
		runErr = err
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	components.Shutdown(shutdownCtx)

	observability.Sync()
	return runErr
}
