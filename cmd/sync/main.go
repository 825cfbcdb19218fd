// Command sync runs account and transaction syncs outside the API server,
// for cron jobs and manual backfills.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finlink/internal/config"
	"finlink/internal/crypto"
	"finlink/internal/database"
	"finlink/internal/logger"
	"finlink/internal/plaid"
	"finlink/internal/server"
)

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Get().Fatalf("Sync error: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "sync",
		Short:         "Pull provider data for linked items",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var userID string
	transactionsCmd := &cobra.Command{
		Use:   "transactions",
		Short: "Sync transactions for every item of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(func(svc server.Services) error {
				result, err := svc.TransactionSync.SyncTransactions(cmd.Context(), userID)
				if err != nil {
					return err
				}
				logger.Get().Infow("transactions synced",
					"user_id", userID,
					"added", len(result.Added),
					"modified", len(result.Modified),
					"removed", len(result.Removed),
				)
				return nil
			})
		},
	}
	transactionsCmd.Flags().StringVar(&userID, "user", "", "User ID whose items are synced")
	_ = transactionsCmd.MarkFlagRequired("user")

	var itemID string
	accountsCmd := &cobra.Command{
		Use:   "accounts",
		Short: "Reconcile the accounts of one item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(func(svc server.Services) error {
				accounts, err := svc.AccountSync.SyncAccounts(cmd.Context(), itemID, nil)
				if err != nil {
					return err
				}
				logger.Get().Infow("accounts synced", "item_id", itemID, "accounts", len(accounts))
				return nil
			})
		},
	}
	accountsCmd.Flags().StringVar(&itemID, "item", "", "Linked item ID")
	_ = accountsCmd.MarkFlagRequired("item")

	root.AddCommand(transactionsCmd, accountsCmd)
	return root
}

// withServices connects to the database and provider, then runs fn.
func withServices(fn func(svc server.Services) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	dbManager, err := database.NewManager(cfg.DSN(), "migrations")
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() { _ = dbManager.Close() }()

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}
	baseURL, err := plaid.BaseURL(cfg.Plaid.Env)
	if err != nil {
		return err
	}
	client := plaid.NewHTTPClient(baseURL, cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Timeout, nil)

	return fn(server.NewServices(dbManager.DB(), client, codec, cfg.Plaid))
}
