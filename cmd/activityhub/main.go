package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"activityhub/internal/app"
	"activityhub/internal/auth"
	"activityhub/internal/config"
	"activityhub/pkg/types"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cli.Command{
		Name:    "activityhub",
		Usage:   "Realtime activity feed service",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to JSON config file",
				Sources:     cli.EnvVars("ACTIVITYHUB_CONFIG"),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("ACTIVITYHUB_LOG_LEVEL"),
				Value:       "",
				Destination: &logLevel,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return serve(ctx, configPath, logLevel)
		},
		Commands: []*cli.Command{
			tokenCommand(&configPath),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log, err := setupLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(runCtx); err != nil {
		return err
	}

	<-runCtx.Done()
	log.Info().Msg("signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return application.Stop(shutdownCtx)
}

// tokenCommand mints a signed token for local development and testing.
func tokenCommand(configPath *string) *cli.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a signed access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user",
				Usage:       "user id the token identifies",
				Required:    true,
				Destination: &userID,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "display name",
				Destination: &name,
			},
			&cli.StringFlag{
				Name:        "role",
				Usage:       "role (admin, customer, service)",
				Value:       types.RoleCustomer,
				Destination: &role,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "token lifetime",
				Destination: &ttl,
			},
		},
		Action: func(_ context.Context, _ *cli.Command) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !types.IsValidRole(role) || role == "" {
				return types.ErrInvalidRole
			}
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL.Std()
			}

			token, err := auth.Sign(cfg.Auth.Secret, auth.Identity{
				UserID: userID,
				Name:   name,
				Role:   role,
			}, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
}

func setupLogger(level string) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(parsed).With().Timestamp().Logger(), nil
}
