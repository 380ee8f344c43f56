// Package google implements store.Store with Google Drive and Google Sheets.
//
// A workbook is a native Google spreadsheet located by name in Drive.
// Sheets has no table objects, so a table is a named range covering the
// header row; data rows live directly below it in the same columns.
package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/shopbook/internal/logging"
	"github.com/digitaldrywood/shopbook/internal/session"
	"github.com/digitaldrywood/shopbook/internal/store"
	"github.com/digitaldrywood/shopbook/internal/xlsx"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

type SheetsStore struct {
	drive    *drive.Service
	sheets   *sheets.Service
	document string
	log      logrus.FieldLogger

	mu            sync.Mutex
	spreadsheetID string
}

var _ store.Store = (*SheetsStore)(nil)

type Config struct {
	Document string
	Timeout  time.Duration
	Logger   logrus.FieldLogger
}

// NewSheetsStore builds Drive and Sheets services that authenticate through
// provider. Extra client options are applied last.
func NewSheetsStore(ctx context.Context, provider session.Provider, cfg Config, opts ...option.ClientOption) (*SheetsStore, error) {
	client := oauth2.NewClient(ctx, session.TokenSource(ctx, provider, Scopes))
	client.Timeout = cfg.Timeout

	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)

	driveSrv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %v", err)
	}
	sheetsSrv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %v", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}

	return &SheetsStore{
		drive:    driveSrv,
		sheets:   sheetsSrv,
		document: cfg.Document,
		log:      log,
	}, nil
}

// remoteError maps client library failures onto store.RemoteError.
func remoteError(err error) error {
	if err == nil {
		return nil
	}

	var re *store.RemoteError
	if errors.As(err, &re) {
		return err
	}
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		return &store.RemoteError{Status: http.StatusUnauthorized, Message: "no usable credential", Err: err}
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = http.StatusText(gerr.Code)
		}
		return &store.RemoteError{Status: gerr.Code, Message: msg, Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &store.RemoteError{Status: store.StatusNetwork, Message: err.Error(), Err: err}
	}
	return &store.RemoteError{Status: store.StatusInvalidResponse, Message: err.Error(), Err: err}
}

func nameQuery(name string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(name)
	return fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, spreadsheetMimeType)
}

func (s *SheetsStore) findFile(ctx context.Context, name string) (string, bool, error) {
	list, err := s.drive.Files.List().
		Q(nameQuery(name)).
		Fields("files(id, name)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", false, remoteError(err)
	}
	if len(list.Files) == 0 {
		return "", false, nil
	}
	if list.Files[0].Id == "" {
		return "", false, store.Invalid("drive file %q has no id", name)
	}
	return list.Files[0].Id, true, nil
}

// spreadsheet resolves the document's file id once per store.
func (s *SheetsStore) spreadsheet(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.spreadsheetID != "" {
		return s.spreadsheetID, nil
	}
	id, ok, err := s.findFile(ctx, s.document)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("spreadsheet %q not found", s.document)}
	}
	s.spreadsheetID = id
	return id, nil
}

// forget drops the cached file id once the spreadsheet behind it is gone,
// so the next call looks the document up again.
func (s *SheetsStore) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spreadsheetID == id {
		s.spreadsheetID = ""
	}
}

// FileExists implements store.Store.
func (s *SheetsStore) FileExists(ctx context.Context, name string) (bool, error) {
	_, ok, err := s.findFile(ctx, name)
	return ok, err
}

// UploadDocument implements store.Store. The workbook is converted to a
// Google spreadsheet; an existing spreadsheet of the same name is replaced
// in place.
func (s *SheetsStore) UploadDocument(ctx context.Context, name string, content []byte) error {
	id, exists, err := s.findFile(ctx, name)
	if err != nil {
		return err
	}

	media := bytes.NewReader(content)
	var f *drive.File
	if exists {
		f, err = s.drive.Files.Update(id, &drive.File{}).
			Media(media, googleapi.ContentType(xlsx.ContentType)).
			Fields("id").
			Context(ctx).
			Do()
	} else {
		f, err = s.drive.Files.Create(&drive.File{Name: name, MimeType: spreadsheetMimeType}).
			Media(media, googleapi.ContentType(xlsx.ContentType)).
			Fields("id").
			Context(ctx).
			Do()
	}
	if err != nil {
		return remoteError(err)
	}
	if f.Id == "" {
		return store.Invalid("uploaded file has no id")
	}

	if name == s.document {
		s.mu.Lock()
		s.spreadsheetID = f.Id
		s.mu.Unlock()
	}
	s.log.WithFields(logrus.Fields{"document": name, "file": f.Id}).Info("document uploaded")
	return nil
}

type layout struct {
	sheets []*sheets.SheetProperties
	named  []*sheets.NamedRange
}

func (s *SheetsStore) layout(ctx context.Context, id string) (*layout, error) {
	ss, err := s.sheets.Spreadsheets.Get(id).
		Fields("sheets.properties(sheetId,title,index)", "namedRanges").
		Context(ctx).
		Do()
	if err != nil {
		rerr := remoteError(err)
		if store.IsNotFound(rerr) {
			s.forget(id)
		}
		return nil, rerr
	}

	l := &layout{named: ss.NamedRanges}
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			return nil, store.Invalid("sheet without properties")
		}
		l.sheets = append(l.sheets, sh.Properties)
	}
	return l, nil
}

func (l *layout) sheet(ref store.WorksheetRef) (*sheets.SheetProperties, bool) {
	for _, p := range l.sheets {
		if ref.Name != "" && p.Title == ref.Name {
			return p, true
		}
		if ref.Name == "" && p.Index == int64(ref.Index) {
			return p, true
		}
	}
	return nil, false
}

func (l *layout) sheetTitle(sheetID int64) string {
	for _, p := range l.sheets {
		if p.SheetId == sheetID {
			return p.Title
		}
	}
	return ""
}

func (l *layout) namedRange(match func(*sheets.NamedRange) bool) (*sheets.NamedRange, bool) {
	for _, nr := range l.named {
		if match(nr) {
			if nr.Range == nil {
				return nil, false
			}
			return nr, true
		}
	}
	return nil, false
}

func (s *SheetsStore) batchUpdate(ctx context.Context, id string, reqs ...*sheets.Request) (*sheets.BatchUpdateSpreadsheetResponse, error) {
	resp, err := s.sheets.Spreadsheets.BatchUpdate(id, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).
		Do()
	if err != nil {
		return nil, remoteError(err)
	}
	if len(resp.Replies) != len(reqs) {
		return nil, store.Invalid("batch update returned %d replies for %d requests", len(resp.Replies), len(reqs))
	}
	return resp, nil
}

// RenameWorksheet implements store.Store.
func (s *SheetsStore) RenameWorksheet(ctx context.Context, ref store.WorksheetRef, newName string) error {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return err
	}
	l, err := s.layout(ctx, id)
	if err != nil {
		return err
	}
	props, ok := l.sheet(ref)
	if !ok {
		return &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("no worksheet %s", ref)}
	}

	_, err = s.batchUpdate(ctx, id, &sheets.Request{
		UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
			Properties: &sheets.SheetProperties{
				SheetId:         props.SheetId,
				Title:           newName,
				ForceSendFields: []string{"SheetId"},
			},
			Fields: "title",
		},
	})
	return err
}

// CreateWorksheet implements store.Store.
func (s *SheetsStore) CreateWorksheet(ctx context.Context, name string) (store.WorksheetRef, error) {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return store.WorksheetRef{}, err
	}

	resp, err := s.batchUpdate(ctx, id, &sheets.Request{
		AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: name}},
	})
	if err != nil {
		return store.WorksheetRef{}, err
	}

	added := resp.Replies[0].AddSheet
	if added == nil || added.Properties == nil || added.Properties.Title == "" {
		return store.WorksheetRef{}, store.Invalid("add sheet reply has no properties")
	}
	return store.WorksheetRef{Index: int(added.Properties.Index), Name: added.Properties.Title}, nil
}

// CreateTable implements store.Store. The named range gets a generated
// placeholder name until RenameTable is called.
func (s *SheetsStore) CreateTable(ctx context.Context, ws store.WorksheetRef, rangeAddress string, hasHeaders bool) (store.TableID, error) {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return "", err
	}
	l, err := s.layout(ctx, id)
	if err != nil {
		return "", err
	}
	props, ok := l.sheet(ws)
	if !ok {
		return "", &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("no worksheet %s", ws)}
	}
	grid, err := gridRange(props.SheetId, rangeAddress)
	if err != nil {
		return "", &store.RemoteError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}

	placeholder := "Table_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	resp, err := s.batchUpdate(ctx, id, &sheets.Request{
		AddNamedRange: &sheets.AddNamedRangeRequest{
			NamedRange: &sheets.NamedRange{Name: placeholder, Range: grid},
		},
	})
	if err != nil {
		return "", err
	}

	added := resp.Replies[0].AddNamedRange
	if added == nil || added.NamedRange == nil || added.NamedRange.NamedRangeId == "" {
		return "", store.Invalid("add named range reply has no id")
	}
	s.log.WithFields(logrus.Fields{"worksheet": ws.String(), "range": rangeAddress, "headers": hasHeaders}).Debug("named range created")
	return store.TableID(added.NamedRange.NamedRangeId), nil
}

// RenameTable implements store.Store.
func (s *SheetsStore) RenameTable(ctx context.Context, tableID store.TableID, newName string) error {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return err
	}

	_, err = s.batchUpdate(ctx, id, &sheets.Request{
		UpdateNamedRange: &sheets.UpdateNamedRangeRequest{
			NamedRange: &sheets.NamedRange{NamedRangeId: string(tableID), Name: newName},
			Fields:     "name",
		},
	})
	return err
}

// SetHeaderRow implements store.Store.
func (s *SheetsStore) SetHeaderRow(ctx context.Context, tableID store.TableID, headers []string) error {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return err
	}
	l, err := s.layout(ctx, id)
	if err != nil {
		return err
	}
	nr, ok := l.namedRange(func(nr *sheets.NamedRange) bool { return nr.NamedRangeId == string(tableID) })
	if !ok {
		return &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("table %s not found", tableID)}
	}

	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	_, err = s.sheets.Spreadsheets.Values.Update(id, nr.Name, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return remoteError(err)
}

// TableExists implements store.Store. A missing spreadsheet means the table
// does not exist either.
func (s *SheetsStore) TableExists(ctx context.Context, tableName string) (bool, error) {
	id, err := s.spreadsheet(ctx)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	l, err := s.layout(ctx, id)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, ok := l.namedRange(func(nr *sheets.NamedRange) bool { return nr.Name == tableName })
	return ok, nil
}

// ListTables implements store.Store.
func (s *SheetsStore) ListTables(ctx context.Context) ([]store.Table, error) {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.layout(ctx, id)
	if err != nil {
		return nil, err
	}

	tables := make([]store.Table, 0, len(l.named))
	for _, nr := range l.named {
		if nr.NamedRangeId == "" || nr.Name == "" || nr.Range == nil {
			return nil, store.Invalid("named range entry is missing id, name or range")
		}
		tables = append(tables, store.Table{
			ID:        store.TableID(nr.NamedRangeId),
			Name:      nr.Name,
			Worksheet: l.sheetTitle(nr.Range.SheetId),
		})
	}
	return tables, nil
}

// ListRows implements store.Store. Rows are read from the header's columns
// below the header row. Blank rows are skipped and short rows are padded
// with nil.
func (s *SheetsStore) ListRows(ctx context.Context, tableName string) ([]store.Row, error) {
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return nil, err
	}
	l, err := s.layout(ctx, id)
	if err != nil {
		return nil, err
	}
	nr, ok := l.namedRange(func(nr *sheets.NamedRange) bool { return nr.Name == tableName })
	if !ok {
		return nil, &store.RemoteError{Status: http.StatusNotFound, Message: fmt.Sprintf("table %s not found", tableName)}
	}

	a1, err := dataRange(l.sheetTitle(nr.Range.SheetId), nr.Range)
	if err != nil {
		return nil, store.Invalid("table %s: %v", tableName, err)
	}
	resp, err := s.sheets.Spreadsheets.Values.Get(id, a1).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).
		Do()
	if err != nil {
		return nil, remoteError(err)
	}

	width := int(nr.Range.EndColumnIndex - nr.Range.StartColumnIndex)
	var rows []store.Row
	for i, values := range resp.Values {
		if len(values) == 0 {
			continue
		}
		if len(values) > width {
			return nil, store.Invalid("row %d of %s has %d cells, want %d", i, tableName, len(values), width)
		}
		row := make(store.Row, width)
		for j, v := range values {
			switch v.(type) {
			case nil, string, float64, bool:
				row[j] = v
			default:
				return nil, store.Invalid("row %d cell %d of %s is not a scalar", i, j, tableName)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AppendRow implements store.Store.
func (s *SheetsStore) AppendRow(ctx context.Context, tableName string, row store.Row) error {
	if err := store.ValidateRow(row); err != nil {
		return fmt.Errorf("append to %s: %w", tableName, err)
	}
	id, err := s.spreadsheet(ctx)
	if err != nil {
		return err
	}

	values := make([]interface{}, len(row))
	copy(values, row)

	_, err = s.sheets.Spreadsheets.Values.Append(id, tableName, &sheets.ValueRange{Values: [][]interface{}{values}}).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to append data to sheet: %w", remoteError(err))
	}
	return nil
}

// gridRange converts an A1 range such as "A1:C1" to a zero-based,
// end-exclusive grid range on sheetID.
func gridRange(sheetID int64, address string) (*sheets.GridRange, error) {
	from, to, ok := strings.Cut(address, ":")
	if !ok {
		to = from
	}
	c1, r1, err := excelize.CellNameToCoordinates(from)
	if err != nil {
		return nil, err
	}
	c2, r2, err := excelize.CellNameToCoordinates(to)
	if err != nil {
		return nil, err
	}
	if c2 < c1 || r2 < r1 {
		return nil, fmt.Errorf("range %s is reversed", address)
	}

	return &sheets.GridRange{
		SheetId:          sheetID,
		StartRowIndex:    int64(r1 - 1),
		EndRowIndex:      int64(r2),
		StartColumnIndex: int64(c1 - 1),
		EndColumnIndex:   int64(c2),
		ForceSendFields:  []string{"SheetId", "StartRowIndex", "StartColumnIndex"},
	}, nil
}

// dataRange returns the open-ended A1 range below a header grid range,
// e.g. 'Tool Inventory'!A2:C.
func dataRange(title string, g *sheets.GridRange) (string, error) {
	if title == "" {
		return "", errors.New("named range points at an unknown sheet")
	}
	if g.EndColumnIndex <= g.StartColumnIndex {
		return "", errors.New("named range has no columns")
	}
	first, err := excelize.ColumnNumberToName(int(g.StartColumnIndex) + 1)
	if err != nil {
		return "", err
	}
	last, err := excelize.ColumnNumberToName(int(g.EndColumnIndex))
	if err != nil {
		return "", err
	}
	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	return fmt.Sprintf("%s!%s%d:%s", quoted, first, g.EndRowIndex+1, last), nil
}
