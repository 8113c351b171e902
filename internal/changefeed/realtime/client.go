package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"teamrelay/internal/changefeed"
	"teamrelay/internal/config"
	"teamrelay/internal/metrics"

	"github.com/gorilla/websocket"
	"gitlab.com/nevasik7/alerting/logger"
)

var (
	ErrJoinRejected = errors.New("realtime channel join rejected")
	ErrChannelError = errors.New("realtime channel error")
)

const (
	protocolVsn  = "1.0.0"
	writeTimeout = 10 * time.Second
)

// Client joins one realtime channel with a postgres_changes binding.
// Only the subset of the channel protocol needed for that is spoken here:
// join, heartbeat, change pushes, close/error
type Client struct {
	log       logger.Logger
	endpoint  string
	apiKey    string
	topic     string
	heartbeat time.Duration
	dialer    *websocket.Dialer

	wmu  sync.Mutex // one concurrent writer per conn
	conn *websocket.Conn
	ref  atomic.Uint64

	started    atomic.Bool
	ready      atomic.Bool
	subscribed chan struct{}
	once       sync.Once
}

func New(log logger.Logger, cfg *config.SupabaseConfig) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("supabase config is required")
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("supabase anon key is required")
	}

	endpoint, err := Endpoint(cfg.URL, cfg.AnonKey)
	if err != nil {
		return nil, err
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "pick_ban"
	}

	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &Client{
		log:       log,
		endpoint:  endpoint,
		apiKey:    cfg.AnonKey,
		topic:     "realtime:" + channel,
		heartbeat: heartbeat,
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
		subscribed: make(chan struct{}),
	}, nil
}

// Endpoint builds the websocket url from the project url: https -> wss, http -> ws
func Endpoint(projectURL, apiKey string) (string, error) {
	if projectURL == "" {
		return "", errors.New("supabase url is required")
	}

	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("invalid supabase url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported supabase url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("supabase url has no host")
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := url.Values{}
	q.Set("apikey", apiKey)
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) Subscribe(ctx context.Context, f changefeed.Filter, h changefeed.Handler) error {
	if !c.started.CompareAndSwap(false, true) {
		return changefeed.ErrAlreadySubscribed
	}

	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial realtime: %w", err)
	}
	c.conn = conn

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		c.ready.Store(false)
		metrics.SubscriptionUp.Set(0)
		_ = conn.Close()
	}()

	// unblock the reader on shutdown
	go func() {
		<-ctx.Done()
		c.wmu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.wmu.Unlock()
		_ = conn.Close()
	}()

	joinRef, err := c.join(f)
	if err != nil {
		return err
	}

	go c.heartbeatLoop(ctx)

	for {
		var msg message
		if err = conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", changefeed.ErrSubscriptionClosed, err)
		}

		if err = c.dispatch(ctx, &msg, joinRef, f, h); err != nil {
			return err
		}
	}
}

func (c *Client) dispatch(ctx context.Context, msg *message, joinRef ref, f changefeed.Filter, h changefeed.Handler) error {
	switch msg.Event {
	case eventReply:
		if msg.Ref != joinRef {
			return nil // heartbeat replies
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("decode join reply: %w", err)
		}
		if reply.Status != replyOK {
			return fmt.Errorf("%w: status=%s response=%s", ErrJoinRejected, reply.Status, string(reply.Response))
		}
		c.ready.Store(true)
		metrics.SubscriptionUp.Set(1)
		c.once.Do(func() { close(c.subscribed) })
		c.log.Infof("Joined %s, listening for %s on %s.%s", c.topic, f.Event, f.Schema, f.Table)

	case eventPostgresChanges:
		if msg.Topic != c.topic {
			return nil
		}
		var p changesPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			c.log.Warnf("Skip malformed postgres_changes payload: %v", err)
			return nil
		}
		if !f.Match(&p.Data) {
			return nil
		}
		h(ctx, &p.Data)

	case eventSystem:
		var p systemPayload
		if err := json.Unmarshal(msg.Payload, &p); err == nil {
			if p.Status == "error" {
				return fmt.Errorf("%w: %s", ErrChannelError, p.Message)
			}
			c.log.Debugf("Realtime system message: status=%s extension=%s message=%s", p.Status, p.Extension, p.Message)
		}

	case eventError:
		if msg.Topic == c.topic {
			return fmt.Errorf("%w: %s", ErrChannelError, string(msg.Payload))
		}

	case eventClose:
		if msg.Topic == c.topic {
			return changefeed.ErrSubscriptionClosed
		}

	default:
		c.log.Debugf("Realtime message ignored: topic=%s event=%s", msg.Topic, msg.Event)
	}

	return nil
}

func (c *Client) join(f changefeed.Filter) (ref, error) {
	event := f.Event
	if event == "" {
		event = "*"
	}

	var jp joinPayload
	jp.Config.PostgresChanges = []postgresChangeFilter{{
		Event:  event,
		Schema: f.Schema,
		Table:  f.Table,
	}}
	jp.AccessToken = c.apiKey

	payload, err := json.Marshal(jp)
	if err != nil {
		return "", err
	}

	r := refOf(c.ref.Add(1))
	if err = c.write(message{
		Topic:   c.topic,
		Event:   eventJoin,
		Payload: payload,
		Ref:     r,
		JoinRef: r,
	}); err != nil {
		return "", fmt.Errorf("failed to send join: %w", err)
	}

	return r, nil
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(c.heartbeat)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			err := c.write(message{
				Topic:   topicPhoenix,
				Event:   eventHeartbeat,
				Payload: json.RawMessage(`{}`),
				Ref:     refOf(c.ref.Add(1)),
			})
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warnf("Realtime heartbeat failed: %v", err)
				}
				return
			}
		}
	}
}

func (c *Client) write(msg message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}

func (c *Client) Ready() bool {
	return c.ready.Load()
}

// Subscribed closed once the join was accepted
func (c *Client) Subscribed() <-chan struct{} {
	return c.subscribed
}
