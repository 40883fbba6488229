package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/config"
	apperrors "github.com/freshlane/realtime-go/internal/errors"
)

// Conn is the subset of the websocket connection the client uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer establishes one connection attempt to the gateway.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client owns the single duplex connection to the realtime gateway shared by
// every consumer in the process. Once the consecutive-failure ceiling is
// reached the client is permanently disabled and the gateway is never dialed
// again for the process lifetime; consumers fall back to the change feed.
type Client struct {
	url     string
	ceiling int
	retryIn time.Duration
	dialer  Dialer
	emitter *Emitter

	onConnect    func()
	onDisconnect func()

	mu         sync.Mutex
	conn       Conn
	generation int
	connected  bool
	connecting bool
	disabled   bool
	attempts   int
}

type Option func(*Client)

// WithDialer substitutes the gateway dialer, primarily for tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRetryDelay overrides the pause between consecutive connection attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryIn = d }
}

func NewClient(gatewayURL string, reconnectCeiling int, opts ...Option) *Client {
	c := &Client{
		url:     gatewayURL,
		ceiling: reconnectCeiling,
		retryIn: 500 * time.Millisecond,
		dialer:  wsDialer{},
		emitter: NewEmitter(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetConnectHook registers the routine run after every successful (re)connect,
// before Connect returns. The session recovery controller replays joins here.
func (c *Client) SetConnectHook(fn func()) {
	c.onConnect = fn
}

// SetDisconnectHook registers the routine run on explicit Disconnect.
func (c *Client) SetDisconnectHook(fn func()) {
	c.onDisconnect = fn
}

func (c *Client) On(event string, fn Handler) int { return c.emitter.On(event, fn) }
func (c *Client) Off(event string, id int)        { c.emitter.Off(event, id) }
func (c *Client) OffAll(event string)             { c.emitter.OffAll(event) }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) Connecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connecting
}

func (c *Client) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Ready reports whether the primary transport should carry traffic.
func (c *Client) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.disabled
}

// Connect establishes the gateway connection. It is idempotent: a no-op when
// already connected, mid-connect, or permanently disabled. A failed attempt
// is retried until the ceiling is reached, at which point the client disables
// itself and returns a TRANSPORT_DISABLED error exactly once.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected || c.connecting || c.disabled {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	gen := c.generation
	c.mu.Unlock()

	return c.dial(ctx, gen)
}

// dial retries until it commits a connection or hits the ceiling. gen pins the
// loop to the connection generation it was started for: an explicit Disconnect
// bumps the generation, which stops the loop and makes it refuse to commit a
// dial that succeeds afterwards.
func (c *Client) dial(ctx context.Context, gen int) error {
	for {
		c.mu.Lock()
		if gen != c.generation || !c.connecting {
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(ctx, config.TransportDialTimeout)
		conn, err := c.dialer.Dial(dialCtx, c.url)
		cancel()

		if err == nil {
			c.mu.Lock()
			if gen != c.generation || !c.connecting {
				// Disconnected while the dial was in flight; stay down.
				c.mu.Unlock()
				_ = conn.Close()
				return nil
			}
			c.conn = conn
			c.connected = true
			c.connecting = false
			c.attempts = 0
			c.generation++
			gen := c.generation
			c.mu.Unlock()

			go c.readPump(conn, gen)

			// Session replay must complete before callers see the connection.
			if c.onConnect != nil {
				c.onConnect()
			}

			log.Info().Str("gateway", c.url).Msg("transport connected")
			return nil
		}

		c.mu.Lock()
		c.attempts++
		attempts := c.attempts
		if attempts >= c.ceiling {
			c.disabled = true
			c.connecting = false
			c.mu.Unlock()
			log.Warn().
				Int("attempts", attempts).
				Msg("transport disabled, falling back to change feed")
			return apperrors.TransportDisabled().WithCause(err)
		}
		c.mu.Unlock()

		log.Debug().Err(err).Int("attempt", attempts).Msg("transport connection attempt failed")

		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.connecting = false
			c.mu.Unlock()
			return ctx.Err()
		case <-time.After(c.retryIn):
		}
	}
}

// Disconnect tears down the connection and clears remembered session state.
// Safe to call when not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.connecting = false
	c.generation++
	c.mu.Unlock()

	if c.onDisconnect != nil {
		c.onDisconnect()
	}

	log.Info().Msg("transport disconnected")
}

// Emit marshals the payload and writes one frame to the gateway.
func (c *Client) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.InvalidInput("payload", err.Error())
	}
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return apperrors.Internal("failed to encode frame").WithCause(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disabled {
		return apperrors.TransportDisabled()
	}
	if !c.connected || c.conn == nil {
		return apperrors.NotConnected()
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Client) readPump(conn Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, gen, err)
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}
		c.emitter.Dispatch(frame.Event, frame.Data)
	}
}

func (c *Client) handleReadError(conn Conn, gen int, err error) {
	c.mu.Lock()
	if gen != c.generation {
		// A stale pump from a superseded connection must not touch state.
		c.mu.Unlock()
		return
	}
	_ = conn.Close()
	c.conn = nil
	c.connected = false
	c.generation++
	if c.disabled {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	reconnectGen := c.generation
	c.mu.Unlock()

	log.Debug().Err(err).Msg("transport connection lost, reconnecting")

	go func() {
		if err := c.dial(context.Background(), reconnectGen); err != nil {
			log.Debug().Err(err).Msg("transport reconnect abandoned")
		}
	}()
}
