package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// ManifestError lists every problem found in a manifest. It is fatal at
// startup and never recovered from at runtime.
type ManifestError struct {
	Problems []string
}

func (e *ManifestError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid manifest: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid manifest:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

// Workbook table names start with a letter or underscore and contain only
// letters, digits, underscores and periods.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

var validTypes = map[ColumnType]bool{
	TypeString:  true,
	TypeNumber:  true,
	TypeDate:    true,
	TypeFormula: true,
}

// Validate checks the structural invariants of the manifest and returns a
// *ManifestError describing all violations.
func (m *Manifest) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(m.Sheets) == 0 {
		add("no worksheets declared")
	}

	tabs := make(map[string]int)
	tables := make(map[string]int)

	for i, s := range m.Sheets {
		where := fmt.Sprintf("worksheet %d (%q)", i+1, s.TabName)

		if strings.TrimSpace(s.TabName) == "" {
			add("worksheet %d: tabName is empty", i+1)
		} else if prev, ok := tabs[strings.ToLower(s.TabName)]; ok {
			add("%s: tabName duplicates worksheet %d", where, prev)
		} else {
			tabs[strings.ToLower(s.TabName)] = i + 1
		}

		switch {
		case s.TableName == "":
			add("%s: tableName is empty", where)
		case !tableNamePattern.MatchString(s.TableName):
			add("%s: tableName %q must start with a letter or underscore and contain only letters, digits, underscores or periods", where, s.TableName)
		default:
			if prev, ok := tables[strings.ToLower(s.TableName)]; ok {
				add("%s: tableName %q duplicates worksheet %d", where, s.TableName, prev)
			} else {
				tables[strings.ToLower(s.TableName)] = i + 1
			}
		}

		if len(s.Columns) == 0 {
			add("%s: no columns declared", where)
		}

		headers := make(map[string]bool)
		for j, c := range s.Columns {
			col := fmt.Sprintf("%s column %d (%q)", where, j+1, c.Header)

			if strings.TrimSpace(c.Header) == "" {
				add("%s column %d: header is empty", where, j+1)
			} else if headers[strings.ToLower(c.Header)] {
				add("%s: duplicate header", col)
			} else {
				headers[strings.ToLower(c.Header)] = true
			}

			if !validTypes[c.Type] {
				add("%s: unknown type %q", col, c.Type)
			}
			if c.Type == TypeFormula && strings.TrimSpace(c.Formula) == "" {
				add("%s: formula column has no formula", col)
			}
			if c.Type != TypeFormula && c.Formula != "" {
				add("%s: formula set on a %s column", col, c.Type)
			}
		}
	}

	if len(problems) > 0 {
		return &ManifestError{Problems: problems}
	}
	return nil
}
