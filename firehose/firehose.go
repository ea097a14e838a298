package firehose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultURL              = "wss://jetstream2.us-east.bsky.network/subscribe?wantedCollections=app.bsky.feed.post"
	defaultHandshakeTimeout = 10 * time.Second

	tagFeatureType = "app.bsky.richtext.facet#tag"
)

// Event is a decoded stream message. Tags is empty for messages that are
// not post creations or carry no hashtags.
type Event struct {
	Kind string
	Tags []string
}

// Client opens subscriptions to a Jetstream endpoint.
type Client struct {
	url       string
	userAgent string
	dialer    *websocket.Dialer
}

// Option configures a Client.
type Option func(*Client)

// WithURL sets the stream endpoint (for testing).
func WithURL(url string) Option {
	return func(c *Client) {
		c.url = url
	}
}

// WithHandshakeTimeout sets the WebSocket handshake timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.dialer.HandshakeTimeout = d
	}
}

// WithUserAgent sets the User-Agent sent during the handshake.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new stream client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		url: defaultURL,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscription is an open stream. It is closed when Close is called or the
// context passed to Subscribe is done.
type Subscription struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Subscribe dials the stream.
func (c *Client) Subscribe(ctx context.Context) (*Subscription, error) {
	header := http.Header{}
	if c.userAgent != "" {
		header.Set("User-Agent", c.userAgent)
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	s := &Subscription{
		conn: conn,
		done: make(chan struct{}),
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

// Next blocks until the next message arrives and decodes it.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetReadDeadline(deadline)
	}

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			// A read failing because the context ended reports the context error.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Event{}, ctxErr
			}
			if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
				return Event{}, context.DeadlineExceeded
			}
			return Event{}, fmt.Errorf("read stream: %w", err)
		}

		event, err := ParseEvent(data)
		if err != nil {
			slog.Debug("skipping malformed stream message", "error", err)
			continue
		}
		return event, nil
	}
}

// Close terminates the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Jetstream message types

type message struct {
	Kind   string  `json:"kind"`
	Commit *commit `json:"commit"`
}

type commit struct {
	Operation  string  `json:"operation"`
	Collection string  `json:"collection"`
	Record     *record `json:"record"`
}

type record struct {
	Text   string   `json:"text"`
	Tags   []string `json:"tags"`
	Facets []facet  `json:"facets"`
}

type facet struct {
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"$type"`
	Tag  string `json:"tag"`
}

// ParseEvent decodes one Jetstream message and extracts its hashtags.
// Inline facet tags come first, then record-level tags; duplicates within a
// message are dropped.
func ParseEvent(data []byte) (Event, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, fmt.Errorf("decode stream message: %w", err)
	}

	event := Event{Kind: msg.Kind}
	if msg.Kind != "commit" || msg.Commit == nil || msg.Commit.Record == nil {
		return event, nil
	}
	if msg.Commit.Operation != "create" {
		return event, nil
	}

	seen := make(map[string]bool)
	add := func(tag string) {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		event.Tags = append(event.Tags, tag)
	}

	for _, f := range msg.Commit.Record.Facets {
		for _, feat := range f.Features {
			if feat.Type == tagFeatureType {
				add(feat.Tag)
			}
		}
	}
	for _, tag := range msg.Commit.Record.Tags {
		add(tag)
	}
	return event, nil
}
