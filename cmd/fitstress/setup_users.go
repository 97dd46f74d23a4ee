package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/dataset"
	"github.com/fitbod/fitstress/internal/seed"
	"github.com/fitbod/fitstress/internal/workout"
)

func newSetupUsersCmd() *cobra.Command {
	var (
		usersPath string
		generate  int
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "setup-users <output-credentials-csv>",
		Short: "Generate synthetic users with keypairs, register them in postgres, and write their credentials CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runSetupUsers(logger, args[0], usersPath, generate)
		},
	}

	cmd.Flags().StringVar(&usersPath, "users", "", "example user CSV to take emails from")
	cmd.Flags().IntVar(&generate, "generate", 0, "generate this many random fitbod.me emails instead of reading --users")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "zap log level")
	return cmd
}

func runSetupUsers(logger *zap.Logger, outputPath, usersPath string, generate int) error {
	var (
		emails []string
		err    error
	)
	switch {
	case generate > 0:
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		emails, err = dataset.GenerateEmails(generate, rng)
	case usersPath != "":
		emails, err = dataset.LoadEmails(usersPath)
	default:
		return fmt.Errorf("setup-users: either --users or --generate is required")
	}
	if err != nil {
		return err
	}

	users := make([]workout.User, 0, len(emails))
	keys := make([]auth.PrivateKey, 0, len(emails))
	for _, email := range emails {
		priv, pub, err := auth.GenerateKeypair()
		if err != nil {
			return err
		}
		users = append(users, workout.User{
			UserID:  uuid.New(),
			Email:   email,
			Key:     pub,
			Created: time.Now().UTC(),
		})
		keys = append(keys, priv)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("setup-users: DATABASE_URL is required")
	}
	store, err := seed.Open(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		return fmt.Errorf("setup-users: %w", err)
	}
	if err := store.CreateTables(ctx); err != nil {
		return err
	}
	if err := store.InsertUsers(ctx, users); err != nil {
		return err
	}
	logger.Info("registered users", zap.Int("count", len(users)))

	if err := dataset.WriteCredentials(outputPath, users, keys); err != nil {
		return err
	}
	logger.Info("wrote credentials", zap.String("path", outputPath))
	return nil
}
