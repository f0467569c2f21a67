// Package signal carries the wire protocol between peers: a websocket
// client used by the call layer, and a small relay server that routes
// messages between authenticated users.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
	"github.com/quickchat/quickcall/internal/proto"
)

var log = logging.Logger("signal")

// ErrClosed is returned by Send once the transport is gone.
var ErrClosed = errors.New("signal: transport closed")

// Client is a websocket connection to the signaling relay. One read loop
// decodes inbound frames and fans them out to subscribers; writes are
// serialized because gorilla connections allow one concurrent writer.
type Client struct {
	url         string
	dialTimeout time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	subs      map[chan proto.Message]struct{}
}

// NewClient prepares a client for url (ws:// or wss://). Connect actually
// dials.
func NewClient(url string, dialTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	return &Client{
		url:         url,
		dialTimeout: dialTimeout,
		subs:        make(map[chan proto.Message]struct{}),
	}
}

// Connect dials the relay and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("signal: dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("signal: already connected")
	}
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn)

	log.Infof("connected to %s", c.url)
	return nil
}

// Connected reports whether the transport is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send encodes and writes one message.
func (c *Client) Send(m proto.Message) error {
	c.mu.Lock()
	conn := c.conn
	ok := c.connected
	c.mu.Unlock()
	if !ok {
		return ErrClosed
	}

	data, err := proto.Encode(m)
	if err != nil {
		return fmt.Errorf("signal: encode %s: %w", m.MsgType(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("signal: write %s: %w", m.MsgType(), err)
	}
	return nil
}

// Subscribe returns a channel of inbound messages. The channel is closed
// when the transport closes; cancel unsubscribes early. Subscribing after
// disconnection yields an already-closed channel.
func (c *Client) Subscribe() (chan proto.Message, func()) {
	ch := make(chan proto.Message, 32)

	c.mu.Lock()
	if !c.connected && c.conn != nil {
		// Transport already came and went.
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
}

// Close tears the connection down. The read loop notices and closes every
// subscriber channel. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.teardown()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("read loop: %v", err)
			}
			return
		}
		msg, err := proto.Decode(data)
		if err != nil {
			// A bad frame is the relay's problem, not a reason to drop
			// the connection.
			log.Warnf("dropping frame: %v", err)
			continue
		}
		c.fanout(msg)
	}
}

func (c *Client) fanout(m proto.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- m:
		default:
			log.Warnf("subscriber full, dropping %s", m.MsgType())
		}
	}
}

func (c *Client) teardown() {
	c.mu.Lock()
	c.connected = false
	for ch := range c.subs {
		close(ch)
		delete(c.subs, ch)
	}
	c.mu.Unlock()
	log.Infof("disconnected from %s", c.url)
}
