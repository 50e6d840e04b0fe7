package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tink3rlabs/targeting/handlers"
	"github.com/tink3rlabs/targeting/health"
	"github.com/tink3rlabs/targeting/middlewares"
	"github.com/tink3rlabs/targeting/pubsub"
	"github.com/tink3rlabs/targeting/storage"
	"github.com/tink3rlabs/targeting/targeting"
	"github.com/tink3rlabs/targeting/telemetry"
)

var migrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the targeting API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "HTTP server host")
	serveCmd.Flags().Int("port", 0, "HTTP server port")
	serveCmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}

	s, err := openStorage()
	if err != nil {
		return err
	}
	// an in-memory database starts empty
	if migrate || s.GetType() == storage.MEMORY {
		if err := storage.NewDatabaseMigration(s).Migrate(); err != nil {
			return fmt.Errorf("failed to migrate storage: %w", err)
		}
	}

	publisher, err := pubsub.PublisherFactory{}.GetInstance(pubsub.PublisherType(cfg.PubSub.Type), cfg.PubSub.Config)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	tp := telemetry.NewTracerProvider("targeting")
	defer tp.Shutdown(context.Background())
	tel := telemetry.New(tp)

	middlewares.DefaultClaimsConfig = middlewares.ClaimsConfig{EmailKey: cfg.Auth.EmailClaim, RolesKey: cfg.Auth.RolesClaim}
	auth, err := middlewares.EnsureValidToken(middlewares.EnsureValidTokenConfig{
		Enabled:          cfg.Auth.Enabled,
		IssuerURL:        cfg.Auth.IssuerURL,
		Audience:         cfg.Auth.Audience,
		AllowedClockSkew: cfg.Auth.AllowedClockSkew,
	})
	if err != nil {
		return fmt.Errorf("failed to set up authentication: %w", err)
	}
	writeRole := ""
	if cfg.Auth.Enabled {
		writeRole = cfg.Auth.WriteRole
	}

	router := handlers.NewRouter(handlers.Options{
		Service:   targeting.NewService(s, publisher, cfg.PubSub.Topic, tel),
		Health:    health.NewHealthChecker(s),
		Telemetry: tel,
		Auth:      auth,
		WriteRole: writeRole,
	})
	server := &http.Server{
		Addr:        cfg.Server.Address(),
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	slog.Info("starting targeting API", slog.String("address", server.Addr), slog.String("storage", cfg.Storage.Type))
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigChan:
		slog.Info("shutting down gracefully")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	}
}
