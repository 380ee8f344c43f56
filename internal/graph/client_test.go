package graph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/shopbook/internal/session"
	"github.com/digitaldrywood/shopbook/internal/store"
)

const (
	docName = "MAE_Workshop_Inventory.xlsx"
	docRoot = "/me/drive/root:/" + docName
	wb      = docRoot + ":/workbook"
)

type call struct {
	Method string
	Path   string
	Body   string
	Auth   string
	Type   string
}

// fakeGraph answers Graph requests from a route table keyed by
// "METHOD path" and records every call.
type fakeGraph struct {
	t      *testing.T
	mu     sync.Mutex
	calls  []call
	routes map[string]func(w http.ResponseWriter, body string)
}

func newFakeGraph(t *testing.T) (*fakeGraph, *Client) {
	f := &fakeGraph{t: t, routes: make(map[string]func(http.ResponseWriter, string))}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)

	provider := session.StaticProvider{Token: session.Token{AccessToken: "tok-123", ExpiresAt: time.Now().Add(time.Hour)}}
	c := NewClient(provider, docName, WithBaseURL(srv.URL), WithTimeout(5*time.Second))
	return f, c
}

func (f *fakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	f.mu.Lock()
	f.calls = append(f.calls, call{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   string(b),
		Auth:   r.Header.Get("Authorization"),
		Type:   r.Header.Get("Content-Type"),
	})
	h, ok := f.routes[key]
	f.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, `{"error":{"code":"itemNotFound","message":"no route `+key+`"}}`)
		return
	}
	h(w, string(b))
}

func (f *fakeGraph) on(method, path string, status int, body string) {
	f.routes[method+" "+path] = func(w http.ResponseWriter, _ string) { writeJSON(w, status, body) }
}

func (f *fakeGraph) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.calls)
	return f.calls[len(f.calls)-1]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func remoteStatus(t *testing.T, err error) int {
	t.Helper()
	var re *store.RemoteError
	require.ErrorAs(t, err, &re)
	return re.Status
}

func TestFileExists(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		f, c := newFakeGraph(t)
		f.on(http.MethodGet, docRoot, http.StatusOK, `{"id":"01ABC","name":"`+docName+`"}`)

		ok, err := c.FileExists(ctx, docName)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "Bearer tok-123", f.last().Auth)
	})

	t.Run("absent", func(t *testing.T) {
		_, c := newFakeGraph(t)

		ok, err := c.FileExists(ctx, docName)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("server error", func(t *testing.T) {
		f, c := newFakeGraph(t)
		f.on(http.MethodGet, docRoot, http.StatusServiceUnavailable, `{"error":{"code":"serviceNotAvailable","message":"try later"}}`)

		_, err := c.FileExists(ctx, docName)
		assert.Equal(t, http.StatusServiceUnavailable, remoteStatus(t, err))
		assert.Contains(t, err.Error(), "serviceNotAvailable: try later")
		assert.True(t, store.IsTemporary(err))
	})

	t.Run("name with spaces and folder", func(t *testing.T) {
		f, c := newFakeGraph(t)
		f.on(http.MethodGet, "/me/drive/root:/Shop Books/Inventory 2026.xlsx", http.StatusOK, `{"id":"1"}`)

		ok, err := c.FileExists(ctx, "Shop Books/Inventory 2026.xlsx")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestUploadDocument(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodPut, docRoot+":/content", http.StatusCreated, `{"id":"01ABC"}`)

	require.NoError(t, c.UploadDocument(context.Background(), docName, []byte("PK\x03\x04payload")))

	got := f.last()
	assert.Equal(t, "PK\x03\x04payload", got.Body)
	assert.Contains(t, got.Type, "spreadsheetml")
}

func TestRenameWorksheet_ByIndex(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, wb+"/worksheets", http.StatusOK,
		`{"value":[{"id":"{00000000-0001}","name":"Sheet1","position":0}]}`)
	f.on(http.MethodPatch, wb+"/worksheets/{00000000-0001}", http.StatusOK, `{"id":"{00000000-0001}","name":"Resell Inventory"}`)

	require.NoError(t, c.RenameWorksheet(context.Background(), store.DefaultWorksheet, "Resell Inventory"))
	assert.JSONEq(t, `{"name":"Resell Inventory"}`, f.last().Body)
}

func TestRenameWorksheet_MissingPosition(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, wb+"/worksheets", http.StatusOK, `{"value":[]}`)

	err := c.RenameWorksheet(context.Background(), store.WorksheetRef{Index: 3}, "X")
	assert.True(t, store.IsNotFound(err))
}

func TestCreateWorksheetAndTable(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeGraph(t)
	f.on(http.MethodPost, wb+"/worksheets/add", http.StatusCreated, `{"id":"{2}","name":"Tool Inventory","position":1}`)
	f.on(http.MethodPost, wb+"/worksheets/Tool Inventory/tables/add", http.StatusCreated, `{"id":"7","name":"Table1"}`)
	f.on(http.MethodPatch, wb+"/tables/7", http.StatusOK, `{"id":"7","name":"Tool_Inventory"}`)
	f.on(http.MethodPatch, wb+"/tables/7/headerRowRange", http.StatusOK, `{}`)

	ws, err := c.CreateWorksheet(ctx, "Tool Inventory")
	require.NoError(t, err)
	assert.Equal(t, store.WorksheetRef{Index: 1, Name: "Tool Inventory"}, ws)

	id, err := c.CreateTable(ctx, ws, "A1:C1", true)
	require.NoError(t, err)
	assert.Equal(t, store.TableID("7"), id)
	assert.JSONEq(t, `{"address":"A1:C1","hasHeaders":true}`, f.last().Body)

	require.NoError(t, c.RenameTable(ctx, id, "Tool_Inventory"))
	assert.JSONEq(t, `{"name":"Tool_Inventory"}`, f.last().Body)

	require.NoError(t, c.SetHeaderRow(ctx, id, []string{"Tool ID", "Name", "Location"}))
	assert.JSONEq(t, `{"values":[["Tool ID","Name","Location"]]}`, f.last().Body)
}

func TestCreateTable_ResponseWithoutID(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodPost, wb+"/worksheets/Tools/tables/add", http.StatusCreated, `{"name":"Table1"}`)

	_, err := c.CreateTable(context.Background(), store.WorksheetRef{Name: "Tools"}, "A1:B1", true)
	assert.Equal(t, store.StatusInvalidResponse, remoteStatus(t, err))
}

func TestTableExists(t *testing.T) {
	ctx := context.Background()
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, wb+"/tables/Resell_Inventory", http.StatusOK, `{"id":"1","name":"Resell_Inventory"}`)
	f.on(http.MethodGet, wb+"/tables/Broken", http.StatusOK, `not json`)
	f.on(http.MethodGet, wb+"/tables/Locked", http.StatusLocked, `{"error":{"code":"resourceLocked"}}`)

	ok, err := c.TableExists(ctx, "Resell_Inventory")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.TableExists(ctx, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.TableExists(ctx, "Broken")
	assert.Equal(t, store.StatusInvalidResponse, remoteStatus(t, err))

	_, err = c.TableExists(ctx, "Locked")
	assert.True(t, store.IsTemporary(err))
}

func TestListTables(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, wb+"/tables", http.StatusOK,
		`{"value":[{"id":"1","name":"Resell_Inventory"},{"id":"2","name":"Tool_Inventory","worksheet":{"id":"{2}","name":"Tool Inventory"}}]}`)

	tables, err := c.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []store.Table{
		{ID: "1", Name: "Resell_Inventory"},
		{ID: "2", Name: "Tool_Inventory", Worksheet: "Tool Inventory"},
	}, tables)

	f.on(http.MethodGet, wb+"/tables", http.StatusOK, `{"value":[{"id":"1"}]}`)
	_, err = c.ListTables(context.Background())
	assert.Equal(t, store.StatusInvalidResponse, remoteStatus(t, err))
}

func TestListRows(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, wb+"/tables/Resell_Inventory/rows", http.StatusOK,
		`{"value":[{"index":0,"values":[["R-001","Lathe",45321,true,null]]},{"index":1,"values":[["R-002","",0,false,""]]}]}`)

	rows, err := c.ListRows(context.Background(), "Resell_Inventory")
	require.NoError(t, err)
	assert.Equal(t, []store.Row{
		{"R-001", "Lathe", 45321.0, true, nil},
		{"R-002", "", 0.0, false, ""},
	}, rows)
}

func TestListRows_RejectsMalformedCells(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nested object", `{"value":[{"index":0,"values":[["a",{"x":1}]]}]}`},
		{"two value arrays", `{"value":[{"index":0,"values":[["a"],["b"]]}]}`},
		{"values not array", `{"value":[{"index":0,"values":["a"]}]}`},
		{"not json", `<html>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, c := newFakeGraph(t)
			f.on(http.MethodGet, wb+"/tables/T/rows", http.StatusOK, tt.body)

			_, err := c.ListRows(context.Background(), "T")
			assert.Equal(t, store.StatusInvalidResponse, remoteStatus(t, err))
		})
	}
}

func TestAppendRow(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodPost, wb+"/tables/Tool_Inventory/rows/add", http.StatusCreated, `{"index":4}`)

	require.NoError(t, c.AppendRow(context.Background(), "Tool_Inventory", store.Row{"T-9", 12, nil, true}))

	var body map[string][][]any
	require.NoError(t, json.Unmarshal([]byte(f.last().Body), &body))
	assert.Equal(t, [][]any{{"T-9", 12.0, nil, true}}, body["values"])

	calls := len(f.calls)
	err := c.AppendRow(context.Background(), "Tool_Inventory", store.Row{[]string{"nope"}})
	require.Error(t, err)
	assert.Len(t, f.calls, calls)
}

func TestMe(t *testing.T) {
	f, c := newFakeGraph(t)
	f.on(http.MethodGet, "/me", http.StatusOK, `{"displayName":"Maker","userPrincipalName":"maker@example.com"}`)

	name, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "maker@example.com", name)
}

func TestAuthFailureSkipsRequest(t *testing.T) {
	f, _ := newFakeGraph(t)
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	defer srv.Close()

	c := NewClient(session.StaticProvider{Err: &session.AuthError{Reason: "not signed in"}}, docName, WithBaseURL(srv.URL))

	_, err := c.FileExists(context.Background(), docName)
	assert.Equal(t, http.StatusUnauthorized, remoteStatus(t, err))
	assert.True(t, store.IsAuth(err))

	var authErr *session.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Empty(t, f.calls)
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(session.StaticProvider{Token: session.Token{AccessToken: "x"}}, docName, WithBaseURL(url))

	_, err := c.TableExists(context.Background(), "Resell_Inventory")
	assert.Equal(t, store.StatusNetwork, remoteStatus(t, err))
	assert.True(t, store.IsTemporary(err))
}
