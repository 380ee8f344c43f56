package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/digitaldrywood/shopbook/internal/store"
)

const workbook = "/me/drive/root:/{document}:/workbook"

type worksheet struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type table struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Worksheet *worksheet `json:"worksheet,omitempty"`
}

type tableRow struct {
	Index  int               `json:"index"`
	Values []json.RawMessage `json:"values"`
}

type collection[T any] struct {
	Value []T `json:"value"`
}

type valuesBody struct {
	Values [][]any `json:"values"`
}

// worksheetID resolves ref to the id used in worksheet URLs. Names are
// accepted by the API directly; positions need a lookup.
func (c *Client) worksheetID(ctx context.Context, ref store.WorksheetRef) (string, error) {
	if ref.Name != "" {
		return ref.Name, nil
	}

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.Get(workbook + "/worksheets")
	if err := check(resp, err); err != nil {
		return "", err
	}

	var list collection[worksheet]
	if err := decode(resp, &list); err != nil {
		return "", err
	}
	for _, ws := range list.Value {
		if ws.Position == ref.Index {
			if ws.ID == "" {
				return "", store.Invalid("worksheet at position %d has no id", ref.Index)
			}
			return ws.ID, nil
		}
	}
	return "", &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("no worksheet at position %d", ref.Index)}
}

// RenameWorksheet implements store.Store.
func (c *Client) RenameWorksheet(ctx context.Context, ref store.WorksheetRef, newName string) error {
	id, err := c.worksheetID(ctx, ref)
	if err != nil {
		return err
	}

	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("worksheet", id).
		SetBody(map[string]string{"name": newName}).
		Patch(workbook + "/worksheets/{worksheet}")
	return check(resp, err)
}

// CreateWorksheet implements store.Store.
func (c *Client) CreateWorksheet(ctx context.Context, name string) (store.WorksheetRef, error) {
	req, err := c.request(ctx)
	if err != nil {
		return store.WorksheetRef{}, err
	}
	resp, err := req.
		SetBody(map[string]string{"name": name}).
		Post(workbook + "/worksheets/add")
	if err := check(resp, err); err != nil {
		return store.WorksheetRef{}, err
	}

	var ws worksheet
	if err := decode(resp, &ws); err != nil {
		return store.WorksheetRef{}, err
	}
	if ws.Name == "" {
		return store.WorksheetRef{}, store.Invalid("created worksheet has no name")
	}
	return store.WorksheetRef{Index: ws.Position, Name: ws.Name}, nil
}

// CreateTable implements store.Store.
func (c *Client) CreateTable(ctx context.Context, ws store.WorksheetRef, rangeAddress string, hasHeaders bool) (store.TableID, error) {
	id, err := c.worksheetID(ctx, ws)
	if err != nil {
		return "", err
	}

	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.
		SetPathParam("worksheet", id).
		SetBody(map[string]any{"address": rangeAddress, "hasHeaders": hasHeaders}).
		Post(workbook + "/worksheets/{worksheet}/tables/add")
	if err := check(resp, err); err != nil {
		return "", err
	}

	var t table
	if err := decode(resp, &t); err != nil {
		return "", err
	}
	if t.ID == "" {
		return "", store.Invalid("created table has no id")
	}
	c.log.WithFields(logrus.Fields{"worksheet": ws.String(), "range": rangeAddress, "table": t.ID}).Debug("table created")
	return store.TableID(t.ID), nil
}

// RenameTable implements store.Store.
func (c *Client) RenameTable(ctx context.Context, id store.TableID, newName string) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("table", string(id)).
		SetBody(map[string]string{"name": newName}).
		Patch(workbook + "/tables/{table}")
	return check(resp, err)
}

// SetHeaderRow implements store.Store.
func (c *Client) SetHeaderRow(ctx context.Context, id store.TableID, headers []string) error {
	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}

	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("table", string(id)).
		SetBody(valuesBody{Values: [][]any{row}}).
		Patch(workbook + "/tables/{table}/headerRowRange")
	return check(resp, err)
}

// TableExists implements store.Store. A 404 is a definite "no".
func (c *Client) TableExists(ctx context.Context, tableName string) (bool, error) {
	req, err := c.request(ctx)
	if err != nil {
		return false, err
	}
	resp, err := req.
		SetPathParam("table", tableName).
		Get(workbook + "/tables/{table}")
	err = check(resp, err)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var t table
	if err := decode(resp, &t); err != nil {
		return false, err
	}
	if t.Name == "" {
		return false, store.Invalid("table %q has no name", tableName)
	}
	return true, nil
}

// ListTables implements store.Store.
func (c *Client) ListTables(ctx context.Context) ([]store.Table, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.Get(workbook + "/tables")
	if err := check(resp, err); err != nil {
		return nil, err
	}

	var list collection[table]
	if err := decode(resp, &list); err != nil {
		return nil, err
	}

	tables := make([]store.Table, 0, len(list.Value))
	for i, t := range list.Value {
		if t.ID == "" || t.Name == "" {
			return nil, store.Invalid("table entry %d is missing id or name", i)
		}
		out := store.Table{ID: store.TableID(t.ID), Name: t.Name}
		if t.Worksheet != nil {
			out.Worksheet = t.Worksheet.Name
		}
		tables = append(tables, out)
	}
	return tables, nil
}

// ListRows implements store.Store. Rows come back in table order.
func (c *Client) ListRows(ctx context.Context, tableName string) ([]store.Row, error) {
	req, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := req.
		SetPathParam("table", tableName).
		Get(workbook + "/tables/{table}/rows")
	if err := check(resp, err); err != nil {
		return nil, err
	}

	var list collection[tableRow]
	if err := decode(resp, &list); err != nil {
		return nil, err
	}

	rows := make([]store.Row, 0, len(list.Value))
	for _, r := range list.Value {
		row, err := parseRow(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseRow decodes the single value array of a table row. Each cell must
// be a JSON scalar.
func parseRow(r tableRow) (store.Row, error) {
	if len(r.Values) != 1 {
		return nil, store.Invalid("row %d has %d value arrays, want 1", r.Index, len(r.Values))
	}

	var cells []json.RawMessage
	if err := json.Unmarshal(r.Values[0], &cells); err != nil {
		return nil, store.Invalid("row %d values are not an array", r.Index)
	}

	row := make(store.Row, len(cells))
	for i, raw := range cells {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, store.Invalid("row %d cell %d: %v", r.Index, i, err)
		}
		switch v.(type) {
		case nil, string, float64, bool:
			row[i] = v
		default:
			return nil, store.Invalid("row %d cell %d is not a scalar", r.Index, i)
		}
	}
	return row, nil
}

// AppendRow implements store.Store.
func (c *Client) AppendRow(ctx context.Context, tableName string, row store.Row) error {
	if err := store.ValidateRow(row); err != nil {
		return fmt.Errorf("append to %s: %w", tableName, err)
	}

	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetPathParam("table", tableName).
		SetBody(valuesBody{Values: [][]any{row}}).
		Post(workbook + "/tables/{table}/rows/add")
	return check(resp, err)
}
