// Package transport implements the live duplex channel to the
// upstream feed service. It keeps the subscription alive with
// automatic redial and backoff, decodes feed messages, and exposes
// the connection flags the tracking engine observes. Ban and
// session-superseded conditions stop the redial loop: a ban waits for
// a successful ban-status re-check, a superseded session waits for an
// explicit user-triggered reconnect.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ernie/heistwatch/internal/domain"
	"github.com/ernie/heistwatch/internal/tracker"
	"github.com/gorilla/websocket"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	writeWait      = 10 * time.Second
)

// wireMessage is one frame from the upstream feed service
type wireMessage struct {
	Type             string         `json:"type"` // snapshot, delta, ban, superseded
	Events           []domain.Event `json:"events,omitempty"`
	RemainingSeconds int            `json:"remainingSeconds,omitempty"`
}

// banStatusResponse is the upstream ban-status endpoint payload
type banStatusResponse struct {
	Banned           bool `json:"banned"`
	RemainingSeconds int  `json:"remainingSeconds"`
}

// Client is a websocket subscription to one feed
type Client struct {
	feed      domain.Feed
	wsURL     string
	statusURL string
	httpc     *http.Client

	msgs   chan tracker.Message
	done   chan struct{}
	resume chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu   sync.Mutex
	st   tracker.TransportStatus
	conn *websocket.Conn
}

// Dial opens a feed subscription. baseURL is the upstream websocket
// base; the feed name is appended as a path segment. The returned
// client keeps redialing until Close.
func Dial(feed domain.Feed, baseURL, statusURL string, dialTimeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("upstream url not configured")
	}
	c := &Client{
		feed:      feed,
		wsURL:     fmt.Sprintf("%s/%s", baseURL, feed),
		statusURL: statusURL,
		httpc:     &http.Client{Timeout: dialTimeout},
		msgs:      make(chan tracker.Message, 16),
		done:      make(chan struct{}),
		resume:    make(chan struct{}, 1),
	}
	c.wg.Add(1)
	go c.run(dialTimeout)
	return c, nil
}

// Messages implements tracker.Transport
func (c *Client) Messages() <-chan tracker.Message {
	return c.msgs
}

// Status implements tracker.Transport
func (c *Client) Status() tracker.TransportStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

// Reconnect clears the superseded flag and resumes dialing. Only ever
// called on explicit user action.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.st.RequiresManualReconnect = false
	c.mu.Unlock()
	select {
	case c.resume <- struct{}{}:
	default:
	}
}

// CheckBanStatus re-validates the ban against the upstream status
// endpoint and updates the client's own ban flags. Idempotent; the
// engine only observes the resulting flags.
func (c *Client) CheckBanStatus(ctx context.Context) error {
	if c.statusURL == "" {
		return fmt.Errorf("ban status url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s?feed=%s", c.statusURL, c.feed), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("ban status check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ban status check: upstream returned %d", resp.StatusCode)
	}

	var status banStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("ban status check: %w", err)
	}

	c.mu.Lock()
	c.st.Banned = status.Banned
	c.st.BanRemainingSeconds = status.RemainingSeconds
	c.mu.Unlock()
	return nil
}

// Close releases the subscription
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
}

// run is the dial/read loop with exponential backoff
func (c *Client) run(dialTimeout time.Duration) {
	defer c.wg.Done()
	defer close(c.msgs)

	backoff := initialBackoff
	for {
		select {
		case <-c.done:
			return
		default:
		}

		if !c.waitUntilDialable() {
			return
		}

		c.setConnecting(true)
		dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
		conn, _, err := dialer.Dial(c.wsURL, nil)
		c.setConnecting(false)
		if err != nil {
			c.setError(fmt.Sprintf("dial %s: %v", c.feed, err))
			if !c.sleep(backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = initialBackoff

		c.setConnected(conn)
		c.readLoop(conn)
		c.setDisconnected()
	}
}

// sleep waits for d or until the client is closed. Returns false when
// the client is closed.
func (c *Client) sleep(d time.Duration) bool {
	select {
	case <-c.done:
		return false
	case <-time.After(d):
		return true
	}
}

// waitUntilDialable blocks while a ban or superseded session forbids
// dialing. Returns false when the client is closed.
func (c *Client) waitUntilDialable() bool {
	for {
		c.mu.Lock()
		blocked := c.st.Banned || c.st.RequiresManualReconnect
		c.mu.Unlock()
		if !blocked {
			return true
		}
		select {
		case <-c.done:
			return false
		case <-c.resume:
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	stopPing := make(chan struct{})
	go c.pingLoop(conn, stopPing)
	defer close(stopPing)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.setError(fmt.Sprintf("read %s: %v", c.feed, err))
			}
			return
		}

		var wm wireMessage
		if err := json.Unmarshal(data, &wm); err != nil {
			log.Printf("Discarding malformed %s message: %v", c.feed, err)
			continue
		}

		switch wm.Type {
		case "snapshot":
			c.deliver(tracker.Message{Snapshot: true, Events: wm.Events})
		case "delta":
			c.deliver(tracker.Message{Events: wm.Events})
		case "ban":
			c.mu.Lock()
			c.st.Banned = true
			c.st.BanRemainingSeconds = wm.RemainingSeconds
			c.mu.Unlock()
			log.Printf("Feed %s banned for %ds", c.feed, wm.RemainingSeconds)
			conn.Close()
			return
		case "superseded":
			c.mu.Lock()
			c.st.RequiresManualReconnect = true
			c.mu.Unlock()
			log.Printf("Feed %s session superseded by another client", c.feed)
			conn.Close()
			return
		default:
			log.Printf("Unknown %s message type %q", c.feed, wm.Type)
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) deliver(m tracker.Message) {
	select {
	case c.msgs <- m:
	case <-c.done:
	}
}

func (c *Client) setConnecting(v bool) {
	c.mu.Lock()
	c.st.Connecting = v
	c.mu.Unlock()
}

func (c *Client) setConnected(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.st.Connected = true
	c.st.Err = ""
	c.mu.Unlock()
	log.Printf("Feed %s connected to %s", c.feed, c.wsURL)
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	c.conn = nil
	c.st.Connected = false
	c.mu.Unlock()
}

func (c *Client) setError(msg string) {
	c.mu.Lock()
	c.st.Err = msg
	c.mu.Unlock()
}
