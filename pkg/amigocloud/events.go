package amigocloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/amigocloud/amigocloud-go/internal/eventbus"
)

// EventNamespace is the Socket.IO namespace carrying AmigoCloud events.
const EventNamespace = "/amigosocket"

// eventPublishTimeout bounds how long a full subscription channel may stall dispatch.
const eventPublishTimeout = time.Second

// Event is a server event delivered to a subscription channel.
type Event = eventbus.Event

// EventCallback receives the arguments of an event, one raw JSON value per argument.
type EventCallback func(args []json.RawMessage)

// AddCallback registers cb for event. Callbacks may be added before or after listening
// starts and run on the goroutine calling StartListening.
func (c *Client) AddCallback(event string, cb EventCallback) error {
	if c.socket == nil {
		return ErrWebsocketsDisabled
	}
	c.socket.On(event, func(args []json.RawMessage) { cb(args) })
	return nil
}

// Subscribe returns a channel receiving the events whose name matches pattern, and a
// function ending the subscription. Patterns are event names in which a "*" part
// stands for any single ':' separated part, so "dataset:*" receives every dataset
// event and "*" receives everything. Events reach the channel while StartListening
// runs; an event is dropped for a subscriber whose buffer stays full.
func (c *Client) Subscribe(pattern string, buffer int) (<-chan Event, func(), error) {
	if c.socket == nil {
		return nil, nil, ErrWebsocketsDisabled
	}
	ch, cancel := c.bus.Subscribe(pattern, buffer)
	return ch, cancel, nil
}

// ListenUserEvents subscribes the socket to the events of the authenticated user.
func (c *Client) ListenUserEvents(ctx context.Context) error {
	userID := c.UserID()
	if userID == 0 {
		return ErrNotAuthenticated
	}
	if c.socket == nil {
		return ErrWebsocketsDisabled
	}
	session, err := c.startWebsocketSession(ctx, "/me/start_websocket_session")
	if err != nil {
		return err
	}
	return c.emit(ctx, "authenticate", map[string]any{
		"userid":            userID,
		"websocket_session": session,
	})
}

// ListenDatasetEvents subscribes the socket to the events of one dataset.
func (c *Client) ListenDatasetEvents(ctx context.Context, owner, project, dataset string) error {
	userID := c.UserID()
	if userID == 0 {
		return ErrNotAuthenticated
	}
	if c.socket == nil {
		return ErrWebsocketsDisabled
	}
	path := fmt.Sprintf("/users/%s/projects/%s/datasets/%s/start_websocket_session", owner, project, dataset)
	session, err := c.startWebsocketSession(ctx, path)
	if err != nil {
		return err
	}
	return c.emit(ctx, "authenticate", map[string]any{
		"userid":            userID,
		"datasetid":         idValue(dataset),
		"websocket_session": session,
	})
}

// StartListening dispatches incoming events to their callbacks until d has elapsed.
// A d of 0 listens until ctx is done or the server closes the connection.
func (c *Client) StartListening(ctx context.Context, d time.Duration) error {
	if c.socket == nil {
		return ErrWebsocketsDisabled
	}
	c.logger.Debug().Dur("duration", d).Msg("listening for events")
	return c.socket.Wait(ctx, d)
}

// Close releases the event socket and ends every subscription. The REST side of the
// client remains usable.
func (c *Client) Close() error {
	if c.socket == nil {
		return nil
	}
	if n := c.bus.Dropped(); n > 0 {
		c.logger.Warn().Uint64("dropped_events", n).Msg("subscribers missed events")
	}
	c.bus.Shutdown()
	return c.socket.Close()
}

func (c *Client) startWebsocketSession(ctx context.Context, path string) (string, error) {
	resp, err := c.Get(ctx, path, nil)
	if err != nil {
		return "", err
	}
	session := resp.Get("websocket_session").String()
	if session == "" {
		return "", ErrUnexpectedResponse.Msg(path + " returned no websocket_session")
	}
	return session, nil
}

func (c *Client) emit(ctx context.Context, event string, data map[string]any) error {
	if err := c.socket.Emit(ctx, event, data); err != nil {
		return ErrRequestFailed.MsgErr(fmt.Sprintf("emitting %s", event), err)
	}
	return nil
}

// idValue sends numeric ids as JSON numbers and anything else as a string.
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
