package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/smart-library/internal/config"
	"github.com/kozaktomas/smart-library/internal/database"
	"github.com/kozaktomas/smart-library/internal/database/postgres"
	"github.com/kozaktomas/smart-library/internal/notify"
	"github.com/kozaktomas/smart-library/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Smart Library API server.

Migrations are applied on startup. The duplicate-enrollment index is loaded from
FACE_INDEX_PATH when a saved copy is still current, otherwise it is rebuilt from
the database, and it is saved again on shutdown.

Examples:
  # Listen on the address from WEB_HOST and WEB_PORT
  smart-library serve

  # Override the port
  smart-library serve --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// applyServeFlags lets command-line flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// initDescriptorStores warms the duplicate-enrollment index and registers the
// stored-descriptor cache.
func initDescriptorStores(ctx context.Context, cfg *config.Config) (*database.DescriptorIndex, error) {
	users, err := database.GetUserReader(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := loadDescriptorIndex(ctx, cfg, users)
	if err != nil {
		return nil, fmt.Errorf("failed to build descriptor index: %w", err)
	}

	cache, err := database.NewCachedDescriptorReader(cfg.FaceAuth.CacheSize, cfg.FaceAuth.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor cache: %w", err)
	}
	database.RegisterDescriptorCache(cache)
	return idx, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := connectDatabase(ctx)
	if err != nil {
		return err
	}
	defer closeDatabase()
	applyServeFlags(cmd, cfg)
	if cfg.Web.SessionSecret == "" {
		slog.Warn("WEB_SESSION_SECRET is not set, session cookies are signed with a development key")
	}

	idx, err := initDescriptorStores(ctx, cfg)
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := notify.New(cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to set up notifications: %w", err)
	}
	defer closeNotifier()

	sessionRepo := postgres.NewSessionRepository(postgres.GetGlobalPool())
	server := web.NewServer(cfg, sessionRepo, notifier)

	go func() {
		<-ctx.Done()
		slog.Info("shutdown requested")

		if err := idx.Save(); err != nil {
			slog.Warn("failed to save descriptor index", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}
	}()

	fmt.Printf("Smart Library API listening on http://%s\n", cfg.Web.ListenAddr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
