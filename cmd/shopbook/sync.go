package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/shopbook/internal/inventory"
	"github.com/digitaldrywood/shopbook/internal/reconcile"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create the workbook if it is missing, otherwise check it",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Reconciler().Run(cmd.Context())
		if err != nil {
			return err
		}
		if err := a.RecordRun(cmd.Context(), res); err != nil {
			log.Warnf("Failed to record sync: %v", err)
		}

		fmt.Print(inventory.FormatResult(res))
		if res.State != reconcile.StateConsistent {
			return exitError(1)
		}
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that every declared table exists, without changing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reconciler().Audit(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Print(inventory.FormatAudit(report))
		if !report.Healthy() {
			return exitError(1)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the result of the last sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DB.Ping(cmd.Context()); err != nil {
			return fmt.Errorf("local database unavailable: %w", err)
		}
		run, err := a.DB.LastRun(cmd.Context(), a.Manifest.DocumentName)
		if err != nil {
			return err
		}
		fmt.Print(inventory.FormatRun(run))
		return nil
	},
}
