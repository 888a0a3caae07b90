package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benrobertsonio/marcoswift.com/internal/config"
	"github.com/benrobertsonio/marcoswift.com/internal/database"
	"github.com/benrobertsonio/marcoswift.com/internal/email"
	"github.com/benrobertsonio/marcoswift.com/internal/handlers"
	"github.com/benrobertsonio/marcoswift.com/internal/signup"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "landing",
		Short:         "Signup endpoint for marcoswift.com",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Migrate the database and serve POST /api/subscribe",
			Long: `Migrate the database and serve the signup endpoint.

Configuration comes from the environment or a .env file in the working
directory. DATABASE_URL is required; set RESEND_API_KEY or SMTP_SERVER to
receive an email for every new subscriber.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the subscriber and rate limit tables",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runMigrate(cmd.Context())
			},
		},
	)

	return root
}

func openDatabase(ctx context.Context) (*config.Config, *database.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close(ctx)
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return cfg, db, nil
}

func runMigrate(ctx context.Context) error {
	_, db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	log.Println("✓ database schema is up to date")
	return nil
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close(context.Background())

	notifier, err := email.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}

	// a nil *email.Notifier must not become a non-nil interface
	var n signup.Notifier
	if notifier != nil {
		n = notifier
	} else {
		log.Println("ℹ Notifications disabled: set RESEND_API_KEY or SMTP_SERVER")
	}

	svc := signup.New(db, n, signup.Options{
		MaxAttempts: cfg.RateLimitMax,
		Window:      cfg.RateLimitWindow,
		Retention:   cfg.RateLimitRetention,
		Redirect:    cfg.Redirect,
	})

	h := handlers.New(svc, db, cfg.TrustForwardedFor)
	srv := h.Server(cfg.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("\033[36m▶ Starting server on http://%s\033[0m", cfg.Addr())
	log.Printf("%s", svc)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	log.Println("shutting down server")
	return nil
}
