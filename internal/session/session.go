// Package session supplies access tokens for the remote store. It runs the
// interactive OAuth2 authorization-code flow with PKCE, keeps the resulting
// token in a local TokenStore, and refreshes it on demand.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/digitaldrywood/shopbook/internal/logging"
)

// Token is an access credential handed to remote store clients.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Provider hands out access tokens. Callers ask for a token before each
// batch of remote calls and never cache or refresh it themselves.
type Provider interface {
	AccessToken(ctx context.Context, scopes []string) (Token, error)
}

// AuthError means no usable credential is available: the user never signed
// in, the token expired and could not be refreshed, or it was revoked.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication required: %s: %v", e.Reason, e.Err)
	}
	return "authentication required: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrNoToken is returned by a TokenStore that holds nothing for a profile.
var ErrNoToken = errors.New("no stored token")

// StoredToken is what a TokenStore persists per profile.
type StoredToken struct {
	Account string
	Scopes  []string
	Token   *oauth2.Token
}

type TokenStore interface {
	LoadToken(ctx context.Context, profile string) (*StoredToken, error)
	SaveToken(ctx context.Context, profile string, t *StoredToken) error
	DeleteToken(ctx context.Context, profile string) error
}

// OAuthProvider is a Provider backed by an oauth2.Config and a TokenStore.
// One provider serves one profile (the backend name).
type OAuthProvider struct {
	profile string
	config  *oauth2.Config
	store   TokenStore
	open    func(url string) error
	log     logrus.FieldLogger

	mu sync.Mutex
}

type Option func(*OAuthProvider)

// WithBrowser replaces the function used to show the sign-in page.
func WithBrowser(open func(url string) error) Option {
	return func(p *OAuthProvider) { p.open = open }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *OAuthProvider) { p.log = l }
}

func NewOAuthProvider(profile string, config *oauth2.Config, store TokenStore, opts ...Option) *OAuthProvider {
	p := &OAuthProvider{
		profile: profile,
		config:  config,
		store:   store,
		open:    openBrowser,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AccessToken returns a valid token for scopes, refreshing the stored one
// if it has expired. Every failure is an *AuthError.
func (p *OAuthProvider) AccessToken(ctx context.Context, scopes []string) (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.store.LoadToken(ctx, p.profile)
	if errors.Is(err, ErrNoToken) {
		return Token{}, &AuthError{Reason: "not signed in, run `auth login`"}
	}
	if err != nil {
		return Token{}, &AuthError{Reason: "token cache unavailable", Err: err}
	}

	if missing := missingScopes(st.Scopes, scopes); len(missing) > 0 {
		return Token{}, &AuthError{Reason: fmt.Sprintf("signed-in session lacks scopes %s, sign in again", strings.Join(missing, ", "))}
	}

	tok, err := p.config.TokenSource(ctx, st.Token).Token()
	if err != nil {
		return Token{}, &AuthError{Reason: "credential expired or was rejected, sign in again", Err: err}
	}

	if tok.AccessToken != st.Token.AccessToken {
		p.log.WithField("profile", p.profile).Debug("access token refreshed")
		st.Token = tok
		if err := p.store.SaveToken(ctx, p.profile, st); err != nil {
			p.log.WithError(err).Warn("unable to cache refreshed token")
		}
	}

	return Token{AccessToken: tok.AccessToken, ExpiresAt: tok.Expiry}, nil
}

// Account returns the account name recorded at sign-in, if any.
func (p *OAuthProvider) Account(ctx context.Context) (string, error) {
	st, err := p.store.LoadToken(ctx, p.profile)
	if errors.Is(err, ErrNoToken) {
		return "", &AuthError{Reason: "not signed in"}
	}
	if err != nil {
		return "", err
	}
	return st.Account, nil
}

// SetAccount records the display name of the signed-in account.
func (p *OAuthProvider) SetAccount(ctx context.Context, account string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, err := p.store.LoadToken(ctx, p.profile)
	if err != nil {
		return err
	}
	st.Account = account
	return p.store.SaveToken(ctx, p.profile, st)
}

// Logout forgets the stored credential. Signing out twice is not an error.
func (p *OAuthProvider) Logout(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.DeleteToken(ctx, p.profile); err != nil && !errors.Is(err, ErrNoToken) {
		return fmt.Errorf("unable to clear session: %w", err)
	}
	return nil
}

func missingScopes(granted, wanted []string) []string {
	have := make(map[string]bool, len(granted))
	for _, s := range granted {
		have[strings.ToLower(s)] = true
	}
	var missing []string
	for _, s := range wanted {
		if !have[strings.ToLower(s)] {
			missing = append(missing, s)
		}
	}
	return missing
}

// TokenSource adapts a Provider to oauth2.TokenSource for client libraries
// that take an *http.Client.
func TokenSource(ctx context.Context, p Provider, scopes []string) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(nil, providerSource{ctx: ctx, provider: p, scopes: scopes})
}

type providerSource struct {
	ctx      context.Context
	provider Provider
	scopes   []string
}

func (s providerSource) Token() (*oauth2.Token, error) {
	t, err := s.provider.AccessToken(s.ctx, s.scopes)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: t.AccessToken, TokenType: "Bearer", Expiry: t.ExpiresAt}, nil
}

// StaticProvider always returns the same token. It is meant for tests and
// for callers that obtained a token elsewhere.
type StaticProvider struct {
	Token Token
	Err   error
}

func (s StaticProvider) AccessToken(context.Context, []string) (Token, error) {
	return s.Token, s.Err
}
