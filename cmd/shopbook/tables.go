package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/digitaldrywood/shopbook/internal/app"
	"github.com/digitaldrywood/shopbook/internal/inventory"
	"github.com/digitaldrywood/shopbook/internal/manifest"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "List the tables in the workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		inv := a.Inventory()
		items, err := inv.Menu(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("=== %s ===\n\n", a.Manifest.DocumentName)
		inventory.RenderMenu(os.Stdout, items)
		if missing := inv.Missing(items); len(missing) > 0 {
			fmt.Printf("\n⚠️  Missing tables: %s. Run `shopbook audit` for details.\n", strings.Join(missing, ", "))
		}
		if len(items) > 0 && !items[len(items)-1].Declared {
			fmt.Println("\n* not declared in the manifest")
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <table|number>",
	Short: "Show the rows of a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		inv := a.Inventory()
		table, err := resolveTable(cmd, inv, args[0])
		if err != nil {
			return err
		}

		view, err := inv.View(cmd.Context(), table)
		if err != nil {
			return err
		}
		inventory.RenderView(os.Stdout, view)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <table|number> [Header=value...]",
	Short: "Add a row to a table",
	Long: `Add a row to a table. Values are given as "Header=value" arguments;
without any, each editable column is prompted for.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		inv := a.Inventory()
		table, err := resolveTable(cmd, inv, args[0])
		if err != nil {
			return err
		}

		var values map[string]string
		if len(args) > 1 {
			values, err = parseValues(args[1:])
		} else {
			values, err = promptValues(a, table)
		}
		if err != nil {
			return err
		}

		if _, err := inv.AddRow(cmd.Context(), table, values); err != nil {
			return err
		}
		fmt.Println("✅ Row added successfully!")
		return nil
	},
}

// resolveTable accepts a table name or its number in the menu.
func resolveTable(cmd *cobra.Command, inv *inventory.Inventory, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, nil
	}

	items, err := inv.Menu(cmd.Context())
	if err != nil {
		return "", err
	}
	if n < 1 || n > len(items) {
		return "", fmt.Errorf("there is no table %d; the menu has %d", n, len(items))
	}
	return items[n-1].TableName, nil
}

func parseValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, s := range args {
		header, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(header) == "" {
			return nil, fmt.Errorf("invalid value %q, expected Header=value", s)
		}
		values[strings.TrimSpace(header)] = value
	}
	return values, nil
}

func promptValues(a *app.App, table string) (map[string]string, error) {
	spec, ok := a.Manifest.Lookup(table)
	if !ok {
		return nil, fmt.Errorf("%s is not declared in the manifest; rows can only be added to declared tables", table)
	}

	reader := bufio.NewReader(os.Stdin)
	values := make(map[string]string)
	for _, c := range spec.Columns {
		if c.Type == manifest.TypeFormula || c.Locked || c.Hidden {
			continue
		}
		fmt.Printf("%s: ", c.Header)
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return nil, fmt.Errorf("failed to read %s: %v", c.Header, err)
		}
		if input = strings.TrimSpace(input); input != "" {
			values[c.Header] = input
		}
	}
	return values, nil
}
