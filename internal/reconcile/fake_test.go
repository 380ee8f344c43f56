package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/digitaldrywood/shopbook/internal/store"
)

// fakeStore is an in-memory workbook that records every call. Errors can
// be queued per call key ("Op:arg"); each queued error is returned once.
type fakeStore struct {
	mu sync.Mutex

	exists     bool
	worksheets []string
	tables     map[string]bool
	ids        map[store.TableID]string
	headers    map[string][]string
	nextID     int

	onUpload func(content []byte)
	errs     map[string][]error
	calls    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tables:  make(map[string]bool),
		ids:     make(map[store.TableID]string),
		headers: make(map[string][]string),
		errs:    make(map[string][]error),
	}
}

// withTables makes the document exist with the given tables.
func (f *fakeStore) withTables(names ...string) *fakeStore {
	f.exists = true
	for _, n := range names {
		f.tables[n] = true
	}
	return f
}

func (f *fakeStore) failOn(key string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[key] = append(f.errs[key], errs...)
}

func (f *fakeStore) record(op, arg string) error {
	key := op + ":" + arg
	f.calls = append(f.calls, key)
	if q := f.errs[key]; len(q) > 0 {
		f.errs[key] = q[1:]
		return q[0]
	}
	return nil
}

// count returns how many calls match op, given either as a bare operation
// ("CreateTable") or as a full call key ("CreateTable:Sheet1!A1:B1").
func (f *fakeStore) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op || strings.HasPrefix(c, op+":") {
			n++
		}
	}
	return n
}

var writeOps = []string{"UploadDocument", "RenameWorksheet", "CreateWorksheet", "CreateTable", "RenameTable", "SetHeaderRow", "AppendRow"}

func (f *fakeStore) writes() int {
	n := 0
	for _, op := range writeOps {
		n += f.count(op)
	}
	return n
}

func (f *fakeStore) FileExists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("FileExists", name); err != nil {
		return false, err
	}
	return f.exists, nil
}

func (f *fakeStore) UploadDocument(_ context.Context, name string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UploadDocument", name); err != nil {
		return err
	}
	f.exists = true
	f.worksheets = []string{"Sheet1"}
	f.tables = make(map[string]bool)
	if f.onUpload != nil {
		f.onUpload(content)
	}
	return nil
}

func (f *fakeStore) RenameWorksheet(_ context.Context, ref store.WorksheetRef, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RenameWorksheet", ref.String()+"->"+newName); err != nil {
		return err
	}
	if ref.Name == "" && ref.Index < len(f.worksheets) {
		f.worksheets[ref.Index] = newName
	}
	return nil
}

func (f *fakeStore) CreateWorksheet(_ context.Context, name string) (store.WorksheetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateWorksheet", name); err != nil {
		return store.WorksheetRef{}, err
	}
	f.worksheets = append(f.worksheets, name)
	return store.WorksheetRef{Index: len(f.worksheets) - 1, Name: name}, nil
}

func (f *fakeStore) CreateTable(_ context.Context, ws store.WorksheetRef, rangeAddress string, hasHeaders bool) (store.TableID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTable", fmt.Sprintf("%s!%s", ws, rangeAddress)); err != nil {
		return "", err
	}
	if !hasHeaders {
		return "", &store.RemoteError{Status: http.StatusBadRequest, Message: "tables need headers here"}
	}
	f.nextID++
	id := store.TableID(fmt.Sprintf("{%d}", f.nextID))
	placeholder := fmt.Sprintf("Table%d", f.nextID)
	f.ids[id] = placeholder
	f.tables[placeholder] = true
	return id, nil
}

func (f *fakeStore) RenameTable(_ context.Context, id store.TableID, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RenameTable", newName); err != nil {
		return err
	}
	old, ok := f.ids[id]
	if !ok {
		return &store.RemoteError{Status: http.StatusNotFound, Message: "no table " + string(id)}
	}
	delete(f.tables, old)
	f.tables[newName] = true
	f.ids[id] = newName
	return nil
}

func (f *fakeStore) SetHeaderRow(_ context.Context, id store.TableID, headers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.ids[id]
	if err := f.record("SetHeaderRow", name); err != nil {
		return err
	}
	f.headers[name] = append([]string(nil), headers...)
	return nil
}

func (f *fakeStore) TableExists(_ context.Context, tableName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("TableExists", tableName); err != nil {
		return false, err
	}
	return f.exists && f.tables[tableName], nil
}

func (f *fakeStore) ListTables(context.Context) ([]store.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Table
	for id, name := range f.ids {
		out = append(out, store.Table{ID: id, Name: name})
	}
	return out, nil
}

func (f *fakeStore) ListRows(context.Context, string) ([]store.Row, error) {
	return nil, nil
}

func (f *fakeStore) AppendRow(_ context.Context, tableName string, _ store.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("AppendRow", tableName)
}

// payloads is a stub Payloads.
type payloads struct {
	template    []byte
	templateErr error
	emptyErr    error
}

func (p payloads) EmptyWorkbook() ([]byte, error) {
	if p.emptyErr != nil {
		return nil, p.emptyErr
	}
	return []byte("empty"), nil
}

func (p payloads) MasterTemplate() ([]byte, bool, error) {
	if p.templateErr != nil {
		return nil, true, p.templateErr
	}
	if p.template == nil {
		return nil, false, nil
	}
	return p.template, true, nil
}
