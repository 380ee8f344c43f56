package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/shopbook/internal/session"
)

// LoadToken implements session.TokenStore.
func (db *DB) LoadToken(ctx context.Context, profile string) (*session.StoredToken, error) {
	var (
		account, scopes, expiry string
		tok                     oauth2.Token
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT account, scopes, access_token, refresh_token, token_type, expiry
		FROM tokens WHERE profile = ?
	`, profile).Scan(&account, &scopes, &tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %v", err)
	}

	if tok.Expiry, err = parseTime(expiry); err != nil {
		return nil, fmt.Errorf("stored token for %s has a bad expiry: %v", profile, err)
	}

	return &session.StoredToken{
		Account: account,
		Scopes:  strings.Fields(scopes),
		Token:   &tok,
	}, nil
}

// SaveToken implements session.TokenStore.
func (db *DB) SaveToken(ctx context.Context, profile string, t *session.StoredToken) error {
	if t == nil || t.Token == nil {
		return errors.New("refusing to store an empty token")
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO tokens (profile, account, scopes, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (profile) DO UPDATE SET
			account = excluded.account,
			scopes = excluded.scopes,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, profile, t.Account, strings.Join(t.Scopes, " "), t.Token.AccessToken, t.Token.RefreshToken,
		t.Token.TokenType, formatTime(t.Token.Expiry), formatTime(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to save token: %v", err)
	}
	return nil
}

// DeleteToken implements session.TokenStore.
func (db *DB) DeleteToken(ctx context.Context, profile string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tokens WHERE profile = ?`, profile)
	if err != nil {
		return fmt.Errorf("failed to delete token: %v", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return session.ErrNoToken
	}
	return nil
}
