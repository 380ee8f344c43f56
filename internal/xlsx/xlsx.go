// Package xlsx produces the workbook payloads uploaded when a document is
// bootstrapped: a minimal empty workbook, or a full master template.
package xlsx

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/shopbook/internal/manifest"
)

// ContentType is the media type of every payload this package produces.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const tableStyle = "TableStyleMedium2"

// Assets supplies bootstrap payloads. With TemplatePath empty, only the empty
// workbook is available and tables are provisioned one by one.
type Assets struct {
	TemplatePath string
}

func (a Assets) EmptyWorkbook() ([]byte, error) {
	return EmptyWorkbook()
}

// MasterTemplate returns the configured template file. ok is false when no
// template is configured.
func (a Assets) MasterTemplate() (content []byte, ok bool, err error) {
	if a.TemplatePath == "" {
		return nil, false, nil
	}
	content, err = LoadTemplate(a.TemplatePath)
	if err != nil {
		return nil, true, err
	}
	return content, true, nil
}

// EmptyWorkbook returns a workbook with a single default worksheet and no
// tables.
func EmptyWorkbook() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("unable to write empty workbook: %v", err)
	}
	return buf.Bytes(), nil
}

// LoadTemplate reads a template from disk and checks that it is a readable
// workbook.
func LoadTemplate(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read template: %w", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("template %s is not a workbook: %w", path, err)
	}
	f.Close()
	return b, nil
}

// BuildTemplate renders a master template for m: one worksheet per sheet
// spec, each holding a table with the declared headers, number formats,
// hidden columns and formula columns.
func BuildTemplate(m *manifest.Manifest) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range m.Sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.TabName); err != nil {
				return nil, fmt.Errorf("rename default sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.TabName); err != nil {
			return nil, fmt.Errorf("add sheet %q: %w", s.TabName, err)
		}

		if err := writeSheet(f, s); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", s.TabName, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("unable to write template: %v", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, s manifest.SheetSpec) error {
	headers := make([]any, len(s.Columns))
	for i, h := range s.Headers() {
		headers[i] = h
	}
	if err := f.SetSheetRow(s.TabName, "A1", &headers); err != nil {
		return err
	}

	for j, c := range s.Columns {
		col, err := excelize.ColumnNumberToName(j + 1)
		if err != nil {
			return err
		}

		style := &excelize.Style{Protection: &excelize.Protection{Locked: c.Locked}}
		if c.Format != "" {
			format := c.Format
			style.CustomNumFmt = &format
		}
		styleID, err := f.NewStyle(style)
		if err != nil {
			return fmt.Errorf("column %q style: %w", c.Header, err)
		}
		if err := f.SetColStyle(s.TabName, col, styleID); err != nil {
			return err
		}

		if c.Hidden {
			if err := f.SetColVisible(s.TabName, col, false); err != nil {
				return err
			}
		}
		if c.Type == manifest.TypeFormula {
			if err := f.SetCellFormula(s.TabName, col+"2", strings.TrimPrefix(c.Formula, "=")); err != nil {
				return fmt.Errorf("column %q formula: %w", c.Header, err)
			}
		}
	}

	rng, err := s.HeaderRange()
	if err != nil {
		return err
	}
	return f.AddTable(s.TabName, &excelize.Table{
		Range:     rng,
		Name:      s.TableName,
		StyleName: tableStyle,
	})
}

// Tables lists the table names found in a workbook, keyed by worksheet.
func Tables(content []byte) (map[string][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string][]string)
	for _, sheet := range f.GetSheetList() {
		tables, err := f.GetTables(sheet)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			out[sheet] = append(out[sheet], t.Name)
		}
	}
	return out, nil
}

// MissingTables returns the manifest tables that content does not define.
func MissingTables(content []byte, m *manifest.Manifest) ([]string, error) {
	found, err := Tables(content)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool)
	for _, names := range found {
		for _, n := range names {
			present[n] = true
		}
	}

	var missing []string
	for _, name := range m.TableNames() {
		if !present[name] {
			missing = append(missing, name)
		}
	}
	return missing, nil
}
