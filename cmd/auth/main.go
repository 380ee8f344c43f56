package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/shopbook/internal/app"
	"github.com/digitaldrywood/shopbook/internal/config"
	"github.com/digitaldrywood/shopbook/internal/database"
	"github.com/digitaldrywood/shopbook/internal/logging"
	"github.com/digitaldrywood/shopbook/internal/session"
)

var rootCmd = &cobra.Command{
	Use:           "auth",
	Short:         "Sign in to the workbook backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the browser and store the token locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("=== Shopbook Authentication ===")
		fmt.Println()

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Session.Login(cmd.Context()); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}

		fmt.Println("✅ Authentication successful!")
		if a.Graph != nil {
			// Test the connection and remember who signed in.
			account, err := a.Graph.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("signed in, but the account could not be read: %w", err)
			}
			if err := a.Session.SetAccount(cmd.Context(), account); err != nil {
				log.Warnf("Failed to store account name: %v", err)
			}
			fmt.Printf("👤 Signed in as: %s\n", account)
		}
		fmt.Println()
		fmt.Println("You can now use the shopbook commands:")
		fmt.Println("  shopbook sync   - Create or check the workbook")
		fmt.Println("  shopbook menu   - List the workbook's tables")
		fmt.Println("  shopbook show   - Show a table")
		fmt.Println("  shopbook add    - Add a row")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Session.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		account, err := a.Session.Account(cmd.Context())
		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			fmt.Println("Not signed in. Run `auth login`.")
			return nil
		}
		if err != nil {
			return err
		}
		if account == "" {
			account = "(unknown account)"
		}
		fmt.Printf("%s backend: %s\n", a.Config.Backend, account)
		return nil
	},
}

func main() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Debugf("token cache: %s/%s", cfg.DataDir, database.FileName)

	return app.Open(cmd.Context(), cfg)
}
