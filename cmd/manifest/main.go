package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitaldrywood/shopbook/internal/manifest"
	"github.com/digitaldrywood/shopbook/internal/xlsx"
)

var rootCmd = &cobra.Command{
	Use:           "manifest",
	Short:         "Inspect the workbook blueprint and build master templates",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check a manifest file, or the built-in one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := load(args)
		if err != nil {
			return err
		}

		fmt.Printf("✅ %s (version %s)\n", m.DocumentName, m.Version)
		for _, s := range m.Sheets {
			fmt.Printf("  • %-22s %-22s %d columns\n", s.TabName, s.TableName, len(s.Columns))
		}
		return nil
	},
}

var templateCmd = &cobra.Command{
	Use:   "template [out.xlsx]",
	Short: "Write a master template workbook with every table provisioned",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("manifest")
		if err != nil {
			return err
		}

		m, err := load([]string{path})
		if err != nil {
			return err
		}
		out := m.DocumentName
		if len(args) == 1 {
			out = args[0]
		}

		content, err := xlsx.BuildTemplate(m)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, content, 0o644); err != nil {
			return fmt.Errorf("failed to write template: %v", err)
		}
		fmt.Printf("📊 Wrote %s with %d tables\n", out, len(m.Sheets))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <template.xlsx> [manifest]",
	Short: "Report manifest tables a template workbook lacks",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := load(args[1:])
		if err != nil {
			return err
		}
		content, err := xlsx.LoadTemplate(args[0])
		if err != nil {
			return err
		}

		missing, err := xlsx.MissingTables(content, m)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("%s is missing tables: %s", args[0], strings.Join(missing, ", "))
		}
		fmt.Printf("✅ %s contains all %d tables\n", args[0], len(m.Sheets))
		return nil
	},
}

func init() {
	templateCmd.Flags().StringP("manifest", "m", "", "manifest file (defaults to the built-in one)")
}

func load(args []string) (*manifest.Manifest, error) {
	if len(args) == 0 || args[0] == "" {
		return manifest.Default()
	}
	return manifest.Load(args[0])
}

func main() {
	rootCmd.AddCommand(validateCmd, templateCmd, checkCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}
