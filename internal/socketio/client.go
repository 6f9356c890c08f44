// Package socketio is a minimal Socket.IO client speaking Engine.IO v3 over a
// websocket. It connects one namespace, emits events, answers heartbeats and hands
// incoming events to registered handlers while the caller waits.
package socketio

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/amigocloud/amigocloud-go/internal/common/logtrace"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrClosed is returned when the connection was closed by the server or by Close.
var ErrClosed = errors.New("socket.io connection closed")

const (
	defaultPingInterval = 25 * time.Second
	defaultPingTimeout  = 60 * time.Second
	inboxSize           = 256
)

// Handler receives the arguments of an event, one raw JSON value per argument.
type Handler func(args []json.RawMessage)

// Options configures a Client.
type Options struct {
	Port               int             // overrides the port of the base URL when non-zero
	Header             http.Header     // extra handshake headers
	InsecureSkipVerify bool            // skips TLS certificate validation
	Logger             *zerolog.Logger // defaults to the global logger
}

type incoming struct {
	name string
	args []json.RawMessage
}

// session is one websocket connection. err is written by the read loop before closed
// is closed and read only after.
type session struct {
	conn   *websocket.Conn
	inbox  chan incoming
	closed chan struct{}
	err    error
}

// AnyHandler receives every event with its name.
type AnyHandler func(event string, args []json.RawMessage)

// Client is a Socket.IO connection to a single namespace. Handlers may be registered
// at any time; the connection is opened on the first Connect, Emit or Wait.
type Client struct {
	endpoint  string
	namespace string
	dialer    *websocket.Dialer
	header    http.Header
	logger    zerolog.Logger

	hmu      sync.RWMutex
	handlers map[string][]Handler
	catchAll []AnyHandler

	mu   sync.Mutex // guards sess
	sess *session

	wmu sync.Mutex // serializes writes on conn
}

// New creates a client for namespace on the server at baseURL (http or https).
func New(baseURL, namespace string, opts Options) (*Client, error) {
	endpoint, err := Endpoint(baseURL, opts.Port)
	if err != nil {
		return nil, err
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	if namespace == "" {
		namespace = "/"
	}
	return &Client{
		endpoint:  endpoint,
		namespace: namespace,
		dialer:    dialer,
		header:    opts.Header,
		logger:    logtrace.Component(logger, "socketio").With().Str("namespace", namespace).Logger(),
		handlers:  make(map[string][]Handler),
	}, nil
}

// Endpoint returns the Engine.IO websocket URL for the server at baseURL.
func Endpoint(baseURL string, port int) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid base URL %q: unsupported scheme", baseURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}
	if port > 0 {
		u.Host = u.Hostname() + ":" + strconv.Itoa(port)
	}
	u.Path = "/socket.io/"
	u.RawQuery = "EIO=3&transport=websocket"
	return u.String(), nil
}

// On registers h for event. Several handlers may be registered for the same event;
// they run in registration order.
func (c *Client) On(event string, h Handler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnAny registers h for every event, after the event's own handlers.
func (c *Client) OnAny(h AnyHandler) {
	c.hmu.Lock()
	defer c.hmu.Unlock()
	c.catchAll = append(c.catchAll, h)
}

// Connect opens the websocket, completes the Engine.IO handshake and joins the
// namespace. It is a no-op when already connected. After the server ends the
// connection the next call dials again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return nil
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.endpoint, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("socket.io handshake with %s failed (%s): %w", c.endpoint, resp.Status, err)
		}
		return fmt.Errorf("socket.io handshake with %s failed: %w", c.endpoint, err)
	}

	info, err := readOpen(conn)
	if err != nil {
		conn.Close()
		return err
	}
	interval := time.Duration(info.PingInterval) * time.Millisecond
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := time.Duration(info.PingTimeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}

	if c.namespace != "/" {
		if err := c.write(conn, encodeConnect(c.namespace)); err != nil {
			conn.Close()
			return fmt.Errorf("joining namespace %s: %w", c.namespace, err)
		}
	}

	s := &session{
		conn:   conn,
		inbox:  make(chan incoming, inboxSize),
		closed: make(chan struct{}),
	}
	c.sess = s
	c.logger.Debug().Str("sid", info.SID).Dur("ping_interval", interval).Msg("socket connected")

	go c.readLoop(s, interval+timeout)
	go c.pingLoop(s, interval)
	return nil
}

func (c *Client) current() *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Emit sends event with args to the namespace, connecting first if needed.
func (c *Client) Emit(ctx context.Context, event string, args ...any) error {
	msg, err := encodeEvent(c.namespace, event, args...)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	s := c.current()
	if s == nil {
		return ErrClosed
	}
	if err := c.write(s.conn, msg); err != nil {
		return fmt.Errorf("emitting %q: %w", event, err)
	}
	c.logger.Debug().Str("event", event).Msg("event emitted")
	return nil
}

// Wait dispatches incoming events to their handlers on the calling goroutine.
// It returns nil once d has elapsed (d <= 0 waits indefinitely), ctx.Err() when ctx
// is done, and ErrClosed or the read error when the connection ends.
func (c *Client) Wait(ctx context.Context, d time.Duration) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	s := c.current()
	if s == nil {
		return ErrClosed
	}

	var timer <-chan time.Time
	if d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timer = t.C
	}

	for {
		select {
		case ev := <-s.inbox:
			c.dispatch(ev)
		case <-s.closed:
			for {
				select {
				case ev := <-s.inbox:
					c.dispatch(ev)
				default:
					if s.err != nil {
						return s.err
					}
					return ErrClosed
				}
			}
		case <-timer:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close leaves the namespace and closes the websocket.
func (c *Client) Close() error {
	c.mu.Lock()
	s := c.sess
	c.sess = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}
	conn := s.conn
	if c.namespace != "/" {
		_ = c.write(conn, string([]byte{engineMessage, sioDisconnect})+c.namespace+",")
	}
	c.wmu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.wmu.Unlock()
	return conn.Close()
}

func (c *Client) dispatch(ev incoming) {
	c.hmu.RLock()
	hs := append([]Handler(nil), c.handlers[ev.name]...)
	anys := append([]AnyHandler(nil), c.catchAll...)
	c.hmu.RUnlock()
	if len(hs) == 0 && len(anys) == 0 {
		c.logger.Debug().Str("event", ev.name).Msg("no handler for event")
		return
	}
	for _, h := range hs {
		h(ev.args)
	}
	for _, h := range anys {
		h(ev.name, ev.args)
	}
}

func (c *Client) write(conn *websocket.Conn, msg string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (c *Client) readLoop(s *session, liveness time.Duration) {
	conn := s.conn
	var err error
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		c.mu.Unlock()
		s.err = err
		close(s.closed)
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveness))
		var raw []byte
		_, raw, err = conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.logger.Debug().Err(err).Msg("socket read loop stopped")
			return
		}

		p, perr := parsePacket(string(raw))
		if perr != nil {
			c.logger.Warn().Err(perr).Msg("dropping malformed packet")
			continue
		}

		switch p.engineType {
		case enginePing:
			if werr := c.write(conn, string([]byte{enginePong})+p.data); werr != nil {
				err = werr
				return
			}
		case engineClose:
			return
		case engineOpen, enginePong, engineUpgrade, engineNoop:
		case engineMessage:
			if p.namespace != c.namespace {
				continue
			}
			switch p.sioType {
			case sioConnect:
				c.logger.Debug().Msg("namespace joined")
			case sioDisconnect:
				c.logger.Info().Msg("namespace disconnected by server")
				return
			case sioError:
				c.logger.Warn().Str("data", p.data).Msg("namespace error")
			case sioEvent:
				name, args, eerr := p.event()
				if eerr != nil {
					c.logger.Warn().Err(eerr).Msg("dropping malformed event")
					continue
				}
				select {
				case s.inbox <- incoming{name: name, args: args}:
				default:
					c.logger.Warn().Str("event", name).Msg("event inbox full, dropping event")
				}
			case sioAck:
			}
		}
	}
}

func (c *Client) pingLoop(s *session, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-t.C:
			if err := c.write(s.conn, string([]byte{enginePing})); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func readOpen(conn *websocket.Conn) (openInfo, error) {
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return openInfo{}, fmt.Errorf("reading socket.io open packet: %w", err)
	}
	p, err := parsePacket(string(raw))
	if err != nil {
		return openInfo{}, err
	}
	if p.engineType != engineOpen {
		return openInfo{}, fmt.Errorf("expected socket.io open packet, got %q", string(raw))
	}
	return parseOpen(p.data)
}
