package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/digitaldrywood/shopbook/internal/session"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_ReopensExistingDatabase(t *testing.T) {
	dir := t.TempDir()

	db, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(dir)
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Ping(context.Background()))
}

func TestPing_ClosedDatabase(t *testing.T) {
	db, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, db.Ping(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping(context.Background()))
}

func TestTokens(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.LoadToken(ctx, "graph")
	assert.ErrorIs(t, err, session.ErrNoToken)

	expiry := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, db.SaveToken(ctx, "graph", &session.StoredToken{
		Scopes: session.GraphScopes,
		Token:  &oauth2.Token{AccessToken: "a1", RefreshToken: "r1", TokenType: "Bearer", Expiry: expiry},
	}))

	got, err := db.LoadToken(ctx, "graph")
	require.NoError(t, err)
	assert.Equal(t, session.GraphScopes, got.Scopes)
	assert.Equal(t, "a1", got.Token.AccessToken)
	assert.Equal(t, "r1", got.Token.RefreshToken)
	assert.True(t, got.Token.Expiry.Equal(expiry))

	got.Account = "maker@example.com"
	got.Token.AccessToken = "a2"
	require.NoError(t, db.SaveToken(ctx, "graph", got))

	again, err := db.LoadToken(ctx, "graph")
	require.NoError(t, err)
	assert.Equal(t, "a2", again.Token.AccessToken)
	assert.Equal(t, "maker@example.com", again.Account)

	_, err = db.LoadToken(ctx, "sheets")
	assert.ErrorIs(t, err, session.ErrNoToken)

	require.NoError(t, db.DeleteToken(ctx, "graph"))
	assert.ErrorIs(t, db.DeleteToken(ctx, "graph"), session.ErrNoToken)
	_, err = db.LoadToken(ctx, "graph")
	assert.ErrorIs(t, err, session.ErrNoToken)
}

func TestSaveToken_RejectsEmpty(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, db.SaveToken(context.Background(), "graph", &session.StoredToken{}))
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	last, err := db.LastRun(ctx, "MAE_Workshop_Inventory.xlsx")
	require.NoError(t, err)
	assert.Nil(t, last)

	start := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	first := &Run{
		Document:   "MAE_Workshop_Inventory.xlsx",
		Backend:    "graph",
		State:      "Bootstrapped",
		Outcome:    "Consistent",
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
	}
	require.NoError(t, db.RecordRun(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &Run{
		Document:   "MAE_Workshop_Inventory.xlsx",
		Backend:    "graph",
		State:      "Repaired",
		Outcome:    "PartiallyFailed",
		StartedAt:  start.Add(time.Minute),
		FinishedAt: start.Add(time.Minute + 2*time.Second),
		Failures: []RunFailure{
			{Table: "Tool_Inventory", Step: "create table", Error: "remote store error 400: bad range"},
			{Table: "Shop_Overhead", Step: "not attempted", Error: "stopped after earlier failure"},
		},
	}
	require.NoError(t, db.RecordRun(ctx, second))

	other := &Run{Document: "Other.xlsx", Backend: "graph", State: "Failed", Outcome: "Failed", StartedAt: start.Add(time.Hour)}
	require.NoError(t, db.RecordRun(ctx, other))

	last, err = db.LastRun(ctx, "MAE_Workshop_Inventory.xlsx")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, second.ID, last.ID)
	assert.Equal(t, "Repaired", last.State)
	assert.True(t, last.FinishedAt.Equal(second.FinishedAt))
	assert.Equal(t, second.Failures, last.Failures)
}
