package reconcile

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitaldrywood/shopbook/internal/store"
)

func TestAudit_ReportsEveryMissingTable(t *testing.T) {
	fs := newFakeStore().withTables("Master_Dashboard", "Shop_Overhead")
	r := New(fs, threeSheets(), payloads{}, Options{AuditConcurrency: 2})

	report, err := r.Audit(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Exists)
	assert.Equal(t, 3, report.Checked)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "Tool_Inventory", report.Warnings[0].Table)
	assert.False(t, report.Healthy())
	assert.Zero(t, fs.writes())
	assert.Equal(t, 3, fs.count("TableExists"))
	assert.Equal(t, map[string]bool{
		"Master_Dashboard": true,
		"Tool_Inventory":   false,
		"Shop_Overhead":    true,
	}, report.Observed.Tables)
}

func TestAudit_Healthy(t *testing.T) {
	fs := newFakeStore().withTables("Master_Dashboard", "Tool_Inventory", "Shop_Overhead")
	r := New(fs, threeSheets(), payloads{}, Options{})

	report, err := r.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
}

func TestAudit_MissingDocument(t *testing.T) {
	fs := newFakeStore()
	r := New(fs, threeSheets(), payloads{}, Options{})

	report, err := r.Audit(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Exists)
	assert.Len(t, report.Warnings, 3)
	assert.Zero(t, fs.count("TableExists"))
	assert.Zero(t, fs.count("UploadDocument"))
}

func TestAudit_ProbeError(t *testing.T) {
	fs := newFakeStore().withTables("Master_Dashboard")
	fs.failOn("TableExists:Shop_Overhead", &store.RemoteError{Status: http.StatusForbidden, Message: "accessDenied"})
	r := New(fs, threeSheets(), payloads{}, Options{})

	_, err := r.Audit(context.Background())
	require.Error(t, err)
	assert.True(t, store.IsAuth(err))
	assert.Contains(t, err.Error(), "Shop_Overhead")
	assert.False(t, r.Busy())
}
