// Package inventory is the read/write surface over a reconciled workbook:
// the table menu, formatted table views, and appending rows.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/digitaldrywood/shopbook/internal/manifest"
	"github.com/digitaldrywood/shopbook/internal/store"
)

var ErrUnknownTable = errors.New("table is not declared in the manifest")

type Inventory struct {
	store    store.Store
	manifest *manifest.Manifest
	printer  *message.Printer
}

func New(s store.Store, m *manifest.Manifest) *Inventory {
	return &Inventory{
		store:    s,
		manifest: m,
		printer:  message.NewPrinter(language.English),
	}
}

type MenuItem struct {
	Label     string
	TableName string
	// Declared is false for tables the user added outside the manifest.
	Declared bool
}

// Menu lists the tables the document actually has. Declared tables come
// first in manifest order, labelled with their tab name; any other tables
// follow in the order the store returned them.
func (inv *Inventory) Menu(ctx context.Context) ([]MenuItem, error) {
	tables, err := inv.store.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	present := make(map[string]bool, len(tables))
	for _, t := range tables {
		present[t.Name] = true
	}

	var items []MenuItem
	declared := make(map[string]bool)
	for _, s := range inv.manifest.Sheets {
		declared[s.TableName] = true
		if present[s.TableName] {
			items = append(items, MenuItem{Label: s.TabName, TableName: s.TableName, Declared: true})
		}
	}
	for _, t := range tables {
		if !declared[t.Name] {
			items = append(items, MenuItem{Label: manifest.DisplayName(t.Name), TableName: t.Name})
		}
	}
	return items, nil
}

// Missing returns declared tables absent from a menu.
func (inv *Inventory) Missing(items []MenuItem) []string {
	have := make(map[string]bool, len(items))
	for _, it := range items {
		have[it.TableName] = true
	}
	var missing []string
	for _, name := range inv.manifest.TableNames() {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

// View is a table ready for display: hidden columns removed and every
// cell formatted as text.
type View struct {
	Table   string
	Title   string
	Headers []string
	Rows    [][]string
	Hidden  int
}

// View reads every row of tableName. Columns come from the manifest when
// the table is declared; otherwise they are labelled by column letter.
func (inv *Inventory) View(ctx context.Context, tableName string) (*View, error) {
	rows, err := inv.store.ListRows(ctx, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", tableName, err)
	}

	spec, declared := inv.manifest.Lookup(tableName)
	width := len(spec.Columns)
	for _, r := range rows {
		width = max(width, len(r))
	}
	columns := make([]manifest.ColumnSpec, width)
	copy(columns, spec.Columns)
	for i := len(spec.Columns); i < width; i++ {
		columns[i] = manifest.ColumnSpec{Header: columnLetter(i), Type: manifest.TypeString}
	}

	view := &View{Table: tableName, Title: manifest.DisplayName(tableName)}
	if declared {
		view.Title = spec.TabName
	}

	var visible []int
	for i, c := range columns {
		if c.Hidden {
			view.Hidden++
			continue
		}
		visible = append(visible, i)
		view.Headers = append(view.Headers, c.Header)
	}

	for _, r := range rows {
		line := make([]string, len(visible))
		for j, i := range visible {
			var v any
			if i < len(r) {
				v = r[i]
			}
			line[j] = inv.formatCell(v, columns[i])
		}
		view.Rows = append(view.Rows, line)
	}
	return view, nil
}

// AddRow appends one row to a declared table. values maps header names
// (case-insensitive) to user input. Unset columns are left empty and
// formula columns are left for the workbook to compute.
func (inv *Inventory) AddRow(ctx context.Context, tableName string, values map[string]string) (store.Row, error) {
	spec, ok := inv.manifest.Lookup(tableName)
	if !ok {
		return nil, fmt.Errorf("%s: %w", tableName, ErrUnknownTable)
	}

	row := make(store.Row, len(spec.Columns))
	var problems []string
	for header, raw := range values {
		i := spec.ColumnIndex(header)
		if i < 0 {
			problems = append(problems, fmt.Sprintf("unknown column %q", header))
			continue
		}
		c := spec.Columns[i]
		if c.Type == manifest.TypeFormula || c.Locked {
			problems = append(problems, fmt.Sprintf("column %q is computed and cannot be set", c.Header))
			continue
		}
		v, err := parseCell(raw, c)
		if err != nil {
			problems = append(problems, fmt.Sprintf("column %q: %v", c.Header, err))
			continue
		}
		row[i] = v
	}
	if len(problems) > 0 {
		return nil, &InputError{Table: tableName, Problems: problems}
	}

	if err := inv.store.AppendRow(ctx, tableName, row); err != nil {
		return nil, fmt.Errorf("failed to add row to %s: %w", tableName, err)
	}
	return row, nil
}

// InputError lists everything wrong with the values given to AddRow.
type InputError struct {
	Table    string
	Problems []string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid row for %s: %s", e.Table, strings.Join(e.Problems, "; "))
}
