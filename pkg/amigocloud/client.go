// Package amigocloud is a client for the AmigoCloud REST API and its websocket event
// channel.
//
// A Client issues authenticated requests, uploads files in checksummed chunks and
// subscribes to user or dataset events:
//
//	cfg := amigocloud.DefaultConfig()
//	c, err := amigocloud.New(cfg)
//	if err != nil {
//		return err
//	}
//	if _, err := c.Authenticate(ctx, token); err != nil {
//		return err
//	}
//	resp, err := c.Get(ctx, "/me/projects", nil)
package amigocloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amigocloud/amigocloud-go/internal/common/httpclient"
	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
	"github.com/amigocloud/amigocloud-go/internal/config"
	"github.com/amigocloud/amigocloud-go/internal/eventbus"
	"github.com/amigocloud/amigocloud-go/internal/socketio"
)

// Version of the client library.
const Version = "0.1.0"

// Config is the client configuration.
type Config = config.Config

// DefaultConfig returns a fresh configuration pointing at the public server.
func DefaultConfig() *Config {
	return config.Default()
}

// Request describes a request for Do and Stream.
type Request = httpclient.RequestOptions

// FilePart is a file field of a multipart request.
type FilePart = httpclient.FilePart

// User is the identity behind the API token, as returned by /me.
type User struct {
	ID        int64          `mapstructure:"id" json:"id"`
	Username  string         `mapstructure:"username" json:"username"`
	Email     string         `mapstructure:"email" json:"email"`
	FirstName string         `mapstructure:"first_name" json:"first_name"`
	LastName  string         `mapstructure:"last_name" json:"last_name"`
	Extra     map[string]any `mapstructure:",remain" json:"extra,omitempty"`
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger    *zerolog.Logger
	transport http.RoundTripper
}

// WithLogger sets the logger of the client and of its transports.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithTransport replaces the HTTP transport used for API requests.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// Client talks to one AmigoCloud server. It is safe for concurrent use, although a
// single upload is always sequential.
type Client struct {
	cfg    Config
	http   httpclient.Requester
	socket *socketio.Client
	bus    *eventbus.Bus
	logger zerolog.Logger

	mu    sync.RWMutex
	token string
	user  *User
}

// credentials feeds the transport with the current base URL and token.
type credentials struct{ c *Client }

func (k credentials) GetBaseURL() string { return k.c.cfg.BaseURL }
func (k credentials) GetToken() string   { return k.c.Token() }

// New creates a client from cfg. A nil cfg means DefaultConfig. The token of cfg, if
// any, is used as is; call Authenticate to also resolve the user behind it.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{cfg: *cfg}
	c.cfg.ApplyDefaults()
	if err := c.cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig.MsgErr(err.Error(), err)
	}
	timeout, _ := c.cfg.GetTimeout()

	logger := log.Logger
	if o.logger != nil {
		logger = *o.logger
	}
	c.logger = logtrace.Component(logger, "amigocloud")
	c.token = c.cfg.Token

	c.http = httpclient.NewClient(credentials{c}, httpclient.ClientOptions{
		DisableCertValidation: c.cfg.InsecureSkipVerify,
		Timeout:               timeout,
		Transport:             o.transport,
		Logger:                &logger,
	})

	if c.cfg.UseWebsockets {
		s, err := socketio.New(c.cfg.BaseURL, EventNamespace, socketio.Options{
			Port:               c.cfg.WebsocketPort,
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
			Logger:             &logger,
		})
		if err != nil {
			return nil, ErrInvalidConfig.MsgErr(err.Error(), err)
		}
		c.socket = s
		c.bus = eventbus.New()
		s.OnAny(func(event string, args []json.RawMessage) {
			c.bus.Publish(Event{Name: event, Args: args}, eventPublishTimeout)
		})
	}
	return c, nil
}

// BaseURL returns the server root the client talks to.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// BuildURL resolves path against the API root. Absolute http(s) URLs are returned
// unchanged.
func (c *Client) BuildURL(path string) string {
	return c.http.BuildURL(path)
}

// Token returns the API token in use, empty when logged out.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// User returns the authenticated user, nil before a successful Authenticate.
func (c *Client) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// UserID returns the id of the authenticated user, 0 when unknown.
func (c *Client) UserID() int64 {
	if u := c.User(); u != nil {
		return u.ID
	}
	return 0
}

// Authenticate sets token and resolves the user behind it. If the token is rejected
// the client is left logged out.
func (c *Client) Authenticate(ctx context.Context, token string) (*User, error) {
	c.mu.Lock()
	c.token = token
	c.user = nil
	c.mu.Unlock()

	u, err := c.Me(ctx)
	if err != nil {
		c.Logout()
		return nil, err
	}

	c.mu.Lock()
	c.user = u
	c.mu.Unlock()
	c.logger.Info().Int64("user_id", u.ID).Str("email", u.Email).Msg("authenticated")
	return u, nil
}

// Logout forgets the token and the user.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.user = nil
}

// Me fetches the user behind the current token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	resp, err := c.Get(ctx, "/me", nil)
	if err != nil {
		return nil, err
	}
	data, ok := resp.JSON().Value().(map[string]any)
	if !ok {
		return nil, ErrUnexpectedResponse.Msg("/me did not return an object")
	}
	u := &User{}
	if err := mapstructure.Decode(data, u); err != nil {
		return nil, ErrUnexpectedResponse.MsgErr("unable to decode /me", err)
	}
	if u.ID == 0 {
		return nil, ErrUnexpectedResponse.Msg("/me returned no user id")
	}
	return u, nil
}

// Get sends a GET request with params as query parameters.
func (c *Client) Get(ctx context.Context, path string, params map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, QueryParams: params})
}

// Post sends body as JSON; a nil body is sent as {}.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, JSON: body})
}

// Put sends body as JSON; a nil body is sent as {}.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, JSON: body})
}

// Patch sends body as JSON; a nil body is sent as {}.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, JSON: body})
}

// Delete sends a DELETE request with body as JSON; a nil body is sent as {}.
func (c *Client) Delete(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, JSON: body})
}

// Do sends req and returns the buffered response. Use it for raw bodies, multipart
// forms or custom headers.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.http.DoRequest(ctx, req)
	if err != nil {
		return nil, requestError(err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
}

// Stream sends req and returns the open response body, which the caller must close.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	rc, err := c.http.StreamRequest(ctx, req)
	if err != nil {
		return nil, requestError(err)
	}
	return rc, nil
}

func requestError(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return ErrRequestFailed.
			MsgErr(fmt.Sprintf("%s %s: %s", httpErr.Method, httpErr.URL, httpErr.Status), httpErr).
			WithStatusCode(httpErr.StatusCode).
			WithDetail(strings.TrimSpace(string(httpErr.Body)))
	}
	return ErrRequestFailed.MsgErr(err.Error(), err)
}
