package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/shopbook/internal/app"
	"github.com/digitaldrywood/shopbook/internal/config"
	"github.com/digitaldrywood/shopbook/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "shopbook",
	Short:         "Keep the workshop inventory workbook in shape and browse its tables",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(syncCmd, auditCmd, menuCmd, showCmd, addCmd, statusCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(int(exit))
		}
		log.Fatalf("%v", err)
	}
}

// exitError ends the process with a status code after output has already
// been written.
type exitError int

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// openApp loads configuration, sets up logging and connects the backend.
func openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	return app.Open(cmd.Context(), cfg)
}
