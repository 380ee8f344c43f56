package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/shopbook/internal/manifest"
)

const displayDate = "01/02/2006"

var dateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

// excelEpoch is day zero of the 1900 date system as used by serial dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

func (inv *Inventory) formatCell(v any, c manifest.ColumnSpec) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case float64:
		return inv.formatNumber(val, c)
	}
	return fmt.Sprint(v)
}

func (inv *Inventory) formatNumber(v float64, c manifest.ColumnSpec) string {
	if c.Type == manifest.TypeDate {
		if t, err := excelize.ExcelDateToTime(v, false); err == nil {
			return t.Format(displayDate)
		}
	}

	switch {
	case strings.Contains(c.Format, "$"):
		if v < 0 {
			return "-$" + inv.printer.Sprintf("%.2f", -v)
		}
		return "$" + inv.printer.Sprintf("%.2f", v)
	case c.Format == "0":
		return inv.printer.Sprintf("%d", int64(math.Round(v)))
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseCell converts user input to a cell value for column c. Empty input
// is an empty cell.
func parseCell(raw string, c manifest.ColumnSpec) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	switch c.Type {
	case manifest.TypeNumber:
		cleaned := strings.NewReplacer("$", "", ",", "").Replace(raw)
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case manifest.TypeDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return excelSerial(t), nil
			}
		}
		return nil, fmt.Errorf("%q is not a date (use YYYY-MM-DD or MM/DD/YYYY)", raw)
	}
	return raw, nil
}

func excelSerial(t time.Time) float64 {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return d.Sub(excelEpoch).Hours() / 24
}

func columnLetter(i int) string {
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return strconv.Itoa(i + 1)
	}
	return name
}
