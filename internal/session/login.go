package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const successPage = `
<html>
	<head><title>Authentication Successful</title></head>
	<body>
		<h1>Authentication Successful!</h1>
		<p>You can close this window and return to the terminal.</p>
		<script>window.setTimeout(function(){window.close();}, 2000);</script>
	</body>
</html>
`

type callbackResult struct {
	code string
	err  error
}

// Login runs the interactive sign-in. It starts a loopback listener on the
// configured redirect URL, shows the consent page, waits for the callback,
// and exchanges the code using PKCE. The new token replaces any stored one.
//
// A redirect URL with port 0 listens on an ephemeral port.
func (p *OAuthProvider) Login(ctx context.Context) error {
	redirect, err := url.Parse(p.config.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect url: %w", err)
	}
	path := redirect.Path
	if path == "" {
		path = "/"
	}

	ln, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("unable to listen for oauth callback on %s: %w", redirect.Host, err)
	}

	cfg := *p.config
	if redirect.Port() == "0" {
		redirect.Host = ln.Addr().String()
		cfg.RedirectURL = redirect.String()
	}

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, callbackHandler(state, results))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.WithError(err).Error("oauth callback server")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	p.log.WithField("url", authURL).Info("opening browser for authentication")
	if err := p.open(authURL); err != nil {
		p.log.WithError(err).Warn("failed to open browser, visit the url above to continue")
	}

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return &AuthError{Reason: "sign-in was not completed", Err: res.err}
	}

	tok, err := cfg.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return &AuthError{Reason: "unable to exchange authorization code", Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	st := &StoredToken{Scopes: cfg.Scopes, Token: tok}
	if err := p.store.SaveToken(ctx, p.profile, st); err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	p.log.WithField("profile", p.profile).Info("signed in")
	return nil
}

func callbackHandler(state string, results chan<- callbackResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("%s: %s", q.Get("error"), q.Get("error_description"))
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in oauth callback")
		case q.Get("code") == "":
			res.err = errors.New("no authorization code received")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, "Error: "+res.err.Error(), http.StatusBadRequest)
		} else {
			fmt.Fprint(w, successPage)
		}

		select {
		case results <- res:
		default:
		}
	}
}

// openBrowser tries to open the URL in a browser.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	}
	return fmt.Errorf("unsupported platform %s", runtime.GOOS)
}
