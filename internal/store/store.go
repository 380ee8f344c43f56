// Package store defines the contract every remote workbook backend
// implements, along with the error and wire types shared between them.
package store

import (
	"context"
	"fmt"
	"strconv"
)

// Store is the remote tabular-data API as seen by the reconciler and the
// presentation layer. Every write mutates remote state and none of them are
// idempotent; callers must not re-issue a write that has succeeded.
type Store interface {
	// FileExists reports whether a document called name exists. An explicit
	// not-found answer is false; any other failure is a *RemoteError.
	FileExists(ctx context.Context, name string) (bool, error)
	// UploadDocument creates or overwrites the named document.
	UploadDocument(ctx context.Context, name string, content []byte) error

	RenameWorksheet(ctx context.Context, ref WorksheetRef, newName string) error
	CreateWorksheet(ctx context.Context, name string) (WorksheetRef, error)

	// CreateTable anchors a new table at rangeAddress (A1 notation) on the
	// given worksheet. The store picks the table's initial name.
	CreateTable(ctx context.Context, ws WorksheetRef, rangeAddress string, hasHeaders bool) (TableID, error)
	RenameTable(ctx context.Context, id TableID, newName string) error
	SetHeaderRow(ctx context.Context, id TableID, headers []string) error

	TableExists(ctx context.Context, tableName string) (bool, error)
	ListTables(ctx context.Context) ([]Table, error)
	ListRows(ctx context.Context, tableName string) ([]Row, error)
	AppendRow(ctx context.Context, tableName string, row Row) error
}

// TableID is the store-assigned identifier of a table.
type TableID string

// WorksheetRef addresses a worksheet by name, or by zero-based position
// when Name is empty.
type WorksheetRef struct {
	Index int
	Name  string
}

// DefaultWorksheet is the single worksheet a freshly created document has.
var DefaultWorksheet = WorksheetRef{Index: 0}

func (r WorksheetRef) String() string {
	if r.Name != "" {
		return r.Name
	}
	return "#" + strconv.Itoa(r.Index)
}

// Table is a table as listed by the remote store.
type Table struct {
	ID        TableID
	Name      string
	Worksheet string
}

// Row is an ordered list of cells. Each cell is a string, float64, bool or
// nil.
type Row []any

// ValidateRow checks that every cell holds one of the supported scalar
// types. Integer types are widened to float64 in place.
func ValidateRow(row Row) error {
	for i, v := range row {
		switch c := v.(type) {
		case nil, string, float64, bool:
		case int:
			row[i] = float64(c)
		case int64:
			row[i] = float64(c)
		case float32:
			row[i] = float64(c)
		default:
			return fmt.Errorf("cell %d has unsupported type %T", i, v)
		}
	}
	return nil
}
