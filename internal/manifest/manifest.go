// Package manifest describes the worksheets, tables and columns a workbook
// is expected to contain.
//
// A Manifest is loaded once at startup, validated, and then only read. The
// first SheetSpec corresponds to the default worksheet every freshly created
// workbook starts with.
package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultManifest []byte

type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeNumber  ColumnType = "number"
	TypeDate    ColumnType = "date"
	TypeFormula ColumnType = "formula"
)

type Manifest struct {
	DocumentName string      `yaml:"spreadsheetName"`
	Version      string      `yaml:"version"`
	Sheets       []SheetSpec `yaml:"worksheets"`
}

type SheetSpec struct {
	TabName   string       `yaml:"tabName"`
	TableName string       `yaml:"tableName"`
	Columns   []ColumnSpec `yaml:"columns"`
}

type ColumnSpec struct {
	Header  string     `yaml:"header"`
	Type    ColumnType `yaml:"type"`
	Format  string     `yaml:"format,omitempty"`
	Formula string     `yaml:"formula,omitempty"`
	Locked  bool       `yaml:"locked,omitempty"`
	Hidden  bool       `yaml:"hidden,omitempty"`
}

// Default returns the embedded workshop inventory manifest.
func Default() (*Manifest, error) {
	m, err := Parse(defaultManifest)
	if err != nil {
		return nil, fmt.Errorf("embedded manifest: %w", err)
	}
	return m, nil
}

// Load reads and validates a manifest file. An empty path selects the
// embedded default.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return Default()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read manifest: %w", err)
	}

	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes YAML (or JSON) manifest bytes and validates the result.
func Parse(b []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, &ManifestError{Problems: []string{fmt.Sprintf("malformed manifest: %v", err)}}
	}

	for i := range m.Sheets {
		for j := range m.Sheets[i].Columns {
			if m.Sheets[i].Columns[j].Type == "" {
				m.Sheets[i].Columns[j].Type = TypeString
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Lookup finds the sheet whose table is called tableName.
func (m *Manifest) Lookup(tableName string) (SheetSpec, bool) {
	for _, s := range m.Sheets {
		if s.TableName == tableName {
			return s, true
		}
	}
	return SheetSpec{}, false
}

// TableNames lists the declared table names in manifest order.
func (m *Manifest) TableNames() []string {
	names := make([]string, len(m.Sheets))
	for i, s := range m.Sheets {
		names[i] = s.TableName
	}
	return names
}

// Headers returns the header row in declared order, hidden columns included.
func (s SheetSpec) Headers() []string {
	headers := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		headers[i] = c.Header
	}
	return headers
}

// HeaderRange is the single-row range, anchored at A1, that holds the
// table's header. Its width is the column count.
func (s SheetSpec) HeaderRange() (string, error) {
	return HeaderRange(len(s.Columns))
}

// HeaderRange returns "A1:<last column>1" for a table n columns wide.
func HeaderRange(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("header range needs at least one column, got %d", n)
	}
	first, err := excelize.CoordinatesToCellName(1, 1)
	if err != nil {
		return "", err
	}
	last, err := excelize.CoordinatesToCellName(n, 1)
	if err != nil {
		return "", err
	}
	return first + ":" + last, nil
}

// ColumnIndex returns the position of header in the sheet, or -1.
func (s SheetSpec) ColumnIndex(header string) int {
	for i, c := range s.Columns {
		if strings.EqualFold(c.Header, header) {
			return i
		}
	}
	return -1
}

// DisplayName turns a remote table name into a menu label, e.g.
// "Shop_Machinery_Table" becomes "Shop Machinery".
func DisplayName(tableName string) string {
	label := strings.ReplaceAll(tableName, "_", " ")
	label = strings.Replace(label, "Table", "", 1)
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return tableName
	}
	return label
}
