// Command tokenctl performs operator tasks against the token store.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ErlanBelekov/passwordless/config"
	"github.com/ErlanBelekov/passwordless/internal/email"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure"
	ctxlog "github.com/ErlanBelekov/passwordless/internal/log"
	"github.com/ErlanBelekov/passwordless/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"
)

var (
	emailFlag = &cli.StringFlag{
		Name:     "email",
		Usage:    "Account email address",
		Required: true,
	}
	registerFlag = &cli.BoolFlag{
		Name:  "register",
		Usage: "Create the account if it does not exist",
	}
)

func main() {
	app := &cli.App{
		Name:  "tokenctl",
		Usage: "Manage passwordless login tokens",
		Commands: []*cli.Command{
			{
				Name:   "sweep",
				Usage:  "Delete every expired token once",
				Action: sweep,
			},
			{
				Name:   "issue",
				Usage:  "Print a sign-in link for an account",
				Flags:  []cli.Flag{emailFlag, registerFlag},
				Action: issue,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func sweep(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	stores, err := infrastructure.Open(c.Context, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer stores.Close()

	n, err := usecase.NewTokenService(stores.Tokens, logger).ClearExpired(c.Context)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "deleted %d expired tokens\n", n)
	return nil
}

func issue(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	stores, err := infrastructure.Open(c.Context, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer stores.Close()

	tokens := usecase.NewTokenService(stores.Tokens, logger)
	// The link is printed, never mailed.
	sender := email.NewLogSender(logger)
	uc := usecase.NewAuthUsecase(stores.Users, tokens, sender, usecase.AuthConfig{
		LoginTTL:          cfg.LoginTTL(),
		AllowRegistration: cfg.AllowRegistration || c.Bool(registerFlag.Name),
		VerifyURL:         cfg.VerifyURL(),
	}, logger)

	link, err := uc.LoginLink(c.Context, c.String(emailFlag.Name))
	if err != nil {
		return fmt.Errorf("issue: %w", err)
	}
	fmt.Fprintln(c.App.Writer, link)
	return nil
}

func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	inner := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.SlogLevel(),
		TimeFormat: time.Kitchen,
	})
	return cfg, slog.New(ctxlog.NewContextHandler(inner)), nil
}
