package xlsx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/shopbook/internal/manifest"
)

func TestEmptyWorkbook(t *testing.T) {
	b, err := EmptyWorkbook()
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Len(t, f.GetSheetList(), 1)
	tables, err := Tables(b)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestBuildTemplate_DefaultManifest(t *testing.T) {
	m, err := manifest.Default()
	require.NoError(t, err)

	b, err := BuildTemplate(m)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	var tabs []string
	for _, s := range m.Sheets {
		tabs = append(tabs, s.TabName)
	}
	assert.Equal(t, tabs, f.GetSheetList())

	rows, err := f.GetRows("Resell Inventory")
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	resell, _ := m.Lookup("Resell_Inventory")
	assert.Equal(t, resell.Headers(), rows[0])

	formula, err := f.GetCellFormula("Resell Inventory", "G2")
	require.NoError(t, err)
	assert.Contains(t, formula, "Purchase Price")

	missing, err := MissingTables(b, m)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestBuildTemplate_HiddenColumn(t *testing.T) {
	m := &manifest.Manifest{Sheets: []manifest.SheetSpec{{
		TabName:   "Tools",
		TableName: "Tools",
		Columns: []manifest.ColumnSpec{
			{Header: "Tool ID", Type: manifest.TypeString},
			{Header: "Internal Ref", Type: manifest.TypeString, Hidden: true},
		},
	}}}

	b, err := BuildTemplate(m)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	visible, err := f.GetColVisible("Tools", "B")
	require.NoError(t, err)
	assert.False(t, visible)

	tables, err := Tables(b)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"Tools": {"Tools"}}, tables)
}

func TestAssets(t *testing.T) {
	_, ok, err := Assets{}.MasterTemplate()
	require.NoError(t, err)
	assert.False(t, ok)

	m, err := manifest.Default()
	require.NoError(t, err)
	tmpl, err := BuildTemplate(m)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "master.xlsx")
	require.NoError(t, os.WriteFile(path, tmpl, 0o644))

	got, ok, err := Assets{TemplatePath: path}.MasterTemplate()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tmpl, got)

	_, ok, err = Assets{TemplatePath: filepath.Join(t.TempDir(), "missing.xlsx")}.MasterTemplate()
	assert.True(t, ok)
	assert.Error(t, err)
}

func TestLoadTemplate_RejectsNonWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := LoadTemplate(path)
	assert.Error(t, err)
}
