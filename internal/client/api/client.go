// Package api is the HTTP client of the admin backend. Every request carries
// the stored bearer token, and every 401 response clears the token and
// raises the process-wide unauthorized signal before the error reaches the
// caller.
package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/atinyakov/teaadmin/internal/client/eventbus"
)

// DefaultTimeout bounds every request. A timeout is a generic failure and
// never ends the session.
const DefaultTimeout = 30 * time.Second

// TokenStore is the subset of tokenstore.Store the client needs.
type TokenStore interface {
	Token() string
	SetToken(token string) error
}

// Publisher receives one event per 401 response.
type Publisher interface {
	Publish(ev eventbus.Unauthorized)
}

// Client talks to the admin backend.
type Client struct {
	http   *resty.Client
	store  TokenStore
	events Publisher
	log    *zap.Logger

	// clearMu makes reading and clearing the token on a 401 one step.
	clearMu sync.Mutex
}

type options struct {
	timeout   time.Duration
	logger    *zap.Logger
	transport http.RoundTripper
	rootCA    string
}

// Option configures a Client.
type Option func(*options)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTransport replaces the HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithRootCA trusts the PEM encoded CA at path for HTTPS base URLs.
func WithRootCA(path string) Option {
	return func(o *options) { o.rootCA = path }
}

// New builds a Client for baseURL.
func New(baseURL string, store TokenStore, events Publisher, opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(o.logger.Sugar())
	if o.transport != nil {
		rc.SetTransport(o.transport)
	}
	if o.rootCA != "" {
		tlsCfg, err := loadRootCA(o.rootCA)
		if err != nil {
			return nil, err
		}
		rc.SetTLSClientConfig(tlsCfg)
	}

	c := &Client{http: rc, store: store, events: events, log: o.logger}
	rc.OnBeforeRequest(c.attachToken)
	rc.OnAfterResponse(c.detectUnauthorized)
	return c, nil
}

func loadRootCA(path string) (*tls.Config, error) {
	caCert, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA cert")
	}
	return &tls.Config{RootCAs: caPool, MinVersion: tls.VersionTLS12}, nil
}

func (c *Client) attachToken(_ *resty.Client, r *resty.Request) error {
	if tok := c.store.Token(); tok != "" {
		r.SetAuthToken(tok)
	}
	return nil
}

func (c *Client) detectUnauthorized(_ *resty.Client, resp *resty.Response) error {
	if resp.StatusCode() != http.StatusUnauthorized {
		return nil
	}

	ev := eventbus.Unauthorized{At: time.Now()}
	if req := resp.Request; req != nil {
		ev.Method = req.Method
		ev.Path = requestPath(req)
	}

	c.clearMu.Lock()
	ev.HadToken = c.store.Token() != ""
	if err := c.store.SetToken(""); err != nil {
		c.log.Warn("failed to clear token after 401", zap.Error(err))
	}
	c.clearMu.Unlock()
	c.log.Info("session rejected by backend",
		zap.String("method", ev.Method),
		zap.String("path", ev.Path),
		zap.Bool("had_token", ev.HadToken),
	)
	if c.events != nil {
		c.events.Publish(ev)
	}
	return decodeError(resp.StatusCode(), resp.Body())
}

func requestPath(r *resty.Request) string {
	if r.RawRequest != nil && r.RawRequest.URL != nil {
		return r.RawRequest.URL.Path
	}
	if u, err := url.Parse(r.URL); err == nil {
		return u.Path
	}
	return r.URL
}

// do executes a request and decodes the unwrapped payload into out.
func (c *Client) do(ctx context.Context, method, path string, body any, query map[string]string, out any) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s %s: %w", method, path, decodeError(resp.StatusCode(), resp.Body()))
	}
	if err := unwrap(resp.StatusCode(), resp.Body(), out); err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return nil
}
