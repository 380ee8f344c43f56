// Package graph implements store.Store on top of the Microsoft Graph
// OneDrive and Excel workbook APIs.
package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/digitaldrywood/shopbook/internal/logging"
	"github.com/digitaldrywood/shopbook/internal/session"
	"github.com/digitaldrywood/shopbook/internal/store"
	"github.com/digitaldrywood/shopbook/internal/xlsx"
)

const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client talks to one workbook in the signed-in user's OneDrive. FileExists
// and UploadDocument take a document name; every workbook operation
// targets the document the client was created for.
type Client struct {
	http     *resty.Client
	provider session.Provider
	scopes   []string
	document string
	log      logrus.FieldLogger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.http.SetBaseURL(strings.TrimSuffix(baseURL, "/")) }
}

// WithTimeout bounds every single HTTP call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = l
		c.http.SetLogger(l)
	}
}

func NewClient(provider session.Provider, document string, opts ...Option) *Client {
	log := logging.Discard()
	c := &Client{
		http:     resty.New().SetBaseURL(DefaultBaseURL).SetLogger(log),
		provider: provider,
		scopes:   session.GraphScopes,
		document: document,
		log:      log,
	}
	c.http.SetHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ store.Store = (*Client)(nil)

// request returns a request carrying a fresh bearer token. The token is
// asked for on every call; the provider decides when to refresh.
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	tok, err := c.provider.AccessToken(ctx, c.scopes)
	if err != nil {
		return nil, &store.RemoteError{Status: http.StatusUnauthorized, Message: "no usable credential", Err: err}
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetRawPathParam("document", drivePath(c.document)), nil
}

// drivePath escapes each segment of a drive-relative path.
func drivePath(name string) string {
	segs := strings.Split(strings.Trim(name, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// check turns a transport failure or non-2xx response into a RemoteError.
func check(resp *resty.Response, err error) error {
	if err != nil {
		return &store.RemoteError{Status: store.StatusNetwork, Message: err.Error(), Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}

	msg := resp.Status()
	var body errorBody
	if json.Unmarshal(resp.Body(), &body) == nil && body.Error.Code != "" {
		msg = body.Error.Code
		if body.Error.Message != "" {
			msg += ": " + body.Error.Message
		}
	}
	return &store.RemoteError{Status: resp.StatusCode(), Message: msg}
}

// decode parses a successful response body into v.
func decode(resp *resty.Response, v any) error {
	if err := json.Unmarshal(resp.Body(), v); err != nil {
		return &store.RemoteError{Status: store.StatusInvalidResponse, Message: "undecodable body", Err: err}
	}
	return nil
}

type user struct {
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
}

// Me returns the signed-in user's principal name, falling back to the
// display name.
func (c *Client) Me(ctx context.Context) (string, error) {
	req, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := req.Get("/me")
	if err := check(resp, err); err != nil {
		return "", err
	}

	var u user
	if err := decode(resp, &u); err != nil {
		return "", err
	}
	for _, name := range []string{u.UserPrincipalName, u.Mail, u.DisplayName} {
		if name != "" {
			return name, nil
		}
	}
	return "", store.Invalid("user profile has no name")
}

// FileExists implements store.Store.
func (c *Client) FileExists(ctx context.Context, name string) (bool, error) {
	req, err := c.request(ctx)
	if err != nil {
		return false, err
	}
	resp, err := req.SetRawPathParam("name", drivePath(name)).Get("/me/drive/root:/{name}")
	err = check(resp, err)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.log.WithField("document", name).Debug("document found")
	return true, nil
}

// UploadDocument implements store.Store.
func (c *Client) UploadDocument(ctx context.Context, name string, content []byte) error {
	req, err := c.request(ctx)
	if err != nil {
		return err
	}
	resp, err := req.
		SetRawPathParam("name", drivePath(name)).
		SetHeader("Content-Type", xlsx.ContentType).
		SetBody(content).
		Put("/me/drive/root:/{name}:/content")
	if err := check(resp, err); err != nil {
		return err
	}
	c.log.WithFields(logrus.Fields{"document": name, "bytes": len(content)}).Info("document uploaded")
	return nil
}
