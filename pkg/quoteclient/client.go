package quoteclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/models"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

const (
	DefaultRequestTimeout = 5 * time.Second
	defaultReconnectMax   = 30 * time.Second
)

var errNotConnected = errors.New("not connected")

type Options struct {
	URL string
	// RequestTimeout bounds every correlated request (valuations, refreshes).
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	WriteWait      time.Duration
	Dialer         *websocket.Dialer
	// OnState, if set, is called after every connection state change.
	OnState func(ConnectionState)
}

func (o *Options) withDefaults() {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		// the ceiling never drops below the floor
		o.ReconnectMax = max(defaultReconnectMax, o.ReconnectMin)
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
}

// Client owns one websocket to the gateway. It mirrors the quote feed into a
// Cache and multiplexes correlated requests over the same connection.
type Client struct {
	opts    Options
	logger  *zap.Logger
	cache   *Cache
	pending *pendingTable

	mu   sync.Mutex // guards conn
	conn *websocket.Conn
	wmu  sync.Mutex // serialises writes on conn

	closeOnce sync.Once
	closed    chan struct{}
}

func New(opts Options, logger *zap.Logger) *Client {
	opts.withDefaults()
	return &Client{
		opts:    opts,
		logger:  logger,
		cache:   NewCache(),
		pending: newPendingTable(),
		closed:  make(chan struct{}),
	}
}

func (c *Client) Cache() *Cache { return c.cache }

func (c *Client) State() ConnectionState { return c.cache.State() }

// Quote is a pure cache lookup.
func (c *Client) Quote(symbol string) (models.Quote, bool) { return c.cache.GetQuote(symbol) }

// Run keeps the connection up, redialling with exponential backoff, until
// ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer c.setState(Disconnected)

	backoff := c.opts.ReconnectMin
	for {
		if c.stopping(ctx) {
			return c.exitErr(ctx)
		}
		c.setState(Connecting)
		conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			if c.stopping(ctx) {
				return c.exitErr(ctx)
			}
			c.setState(Errored)
			c.logger.Warn("Dial failed", zap.String("url", c.opts.URL), zap.Duration("retry_in", backoff), zap.Error(err))

			select {
			case <-ctx.Done():
				return c.exitErr(ctx)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.opts.ReconnectMax {
				backoff = c.opts.ReconnectMax
			}
			continue
		}

		backoff = c.opts.ReconnectMin
		c.attach(conn)
		c.logger.Info("Connected", zap.String("url", c.opts.URL))

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		err = c.readLoop(conn)
		stop()

		if c.stopping(ctx) {
			c.detach(conn, Disconnected, err)
			return c.exitErr(ctx)
		}
		c.logger.Warn("Connection lost", zap.Error(err))
		c.detach(conn, Errored, err)
	}
}

// Close tears the client down. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.pending.failAll(&protocol.ConnectionError{Op: "close", Err: protocol.ErrClosed})
	})
	return nil
}

// Valuate prices holdings on the server. Exactly one of a result, a typed
// error, a timeout, or a connection error is returned.
func (c *Client) Valuate(ctx context.Context, holdings []models.Holding) (models.Valuation, error) {
	env, err := c.roundTrip(ctx, protocol.WSRequest{
		Action:  protocol.ActionValuate,
		Payload: protocol.RequestPayload{Holdings: holdings},
	})
	if err != nil {
		return models.Valuation{}, err
	}
	if env.Type != protocol.TypeValuation {
		return models.Valuation{}, &protocol.ProtocolError{Reason: "expected valuation, got " + env.Type}
	}

	var v models.Valuation
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return models.Valuation{}, &protocol.ProtocolError{Reason: "bad valuation payload: " + err.Error()}
	}
	return v, nil
}

// Refresh asks the server to re-send one symbol. The quote is merged into the
// cache as well as returned.
func (c *Client) Refresh(ctx context.Context, symbol string) (models.Quote, error) {
	env, err := c.roundTrip(ctx, protocol.WSRequest{
		Action:  protocol.ActionRefresh,
		Payload: protocol.RequestPayload{Symbol: symbol},
	})
	if err != nil {
		return models.Quote{}, err
	}

	var q models.Quote
	if env.Type != protocol.TypeQuote || json.Unmarshal(env.Data, &q) != nil {
		return models.Quote{}, &protocol.ProtocolError{Reason: "expected quote for " + symbol + ", got " + env.Type}
	}
	return q, nil
}

// RefreshAll asks the server to re-send the full quote set.
func (c *Client) RefreshAll(ctx context.Context) ([]models.Quote, error) {
	env, err := c.roundTrip(ctx, protocol.WSRequest{Action: protocol.ActionRefreshAll})
	if err != nil {
		return nil, err
	}

	var qs []models.Quote
	if env.Type != protocol.TypeQuoteBatch || json.Unmarshal(env.Data, &qs) != nil {
		return nil, &protocol.ProtocolError{Reason: "expected quote batch, got " + env.Type}
	}
	return qs, nil
}

func (c *Client) roundTrip(ctx context.Context, req protocol.WSRequest) (protocol.Envelope, error) {
	req.ID = uuid.NewString()
	call := c.pending.add(req.ID)

	if err := c.write(req); err != nil {
		c.pending.settle(req.ID, callErrored, outcome{err: err})
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()

	// Whoever settles first delivers the only outcome; a losing settle is a
	// no-op, so each branch reads exactly one value.
	var out outcome
	select {
	case out = <-call.done:
	case <-timer.C:
		c.pending.settle(req.ID, callTimedOut, outcome{err: &protocol.TimeoutError{ID: req.ID, After: c.opts.RequestTimeout}})
		out = <-call.done
	case <-ctx.Done():
		c.pending.settle(req.ID, callCancelled, outcome{err: ctx.Err()})
		out = <-call.done
	}

	c.logger.Debug("Request finished",
		zap.String("id", req.ID), zap.String("action", req.Action), zap.Stringer("state", call.state))
	return out.env, out.err
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		select {
		case <-c.closed:
			return &protocol.ConnectionError{Op: "write", Err: protocol.ErrClosed}
		default:
			return &protocol.ConnectionError{Op: "write", Err: errNotConnected}
		}
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := conn.WriteJSON(v); err != nil {
		return &protocol.ConnectionError{Op: "write", Err: err}
	}
	return nil
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(Connected)
}

// detach forgets conn, drops the cached quotes by leaving Connected, and
// fails everything still waiting on it.
func (c *Client) detach(conn *websocket.Conn, next ConnectionState, cause error) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
	c.setState(next)

	if n := c.pending.failAll(&protocol.ConnectionError{Op: "read", Err: cause}); n > 0 {
		c.logger.Info("Failed pending requests on disconnect", zap.Int("count", n))
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		c.logger.Warn("Undecodable message", zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeQuoteBatch:
		var qs []models.Quote
		if err := json.Unmarshal(env.Data, &qs); err != nil {
			c.reject(env, "bad quote batch: "+err.Error())
			return
		}
		c.cache.Merge(qs...)
		c.complete(env, callResolved, outcome{env: env})

	case protocol.TypeQuote:
		var q models.Quote
		if err := json.Unmarshal(env.Data, &q); err != nil || q.Symbol == "" {
			c.reject(env, "bad quote for "+env.Symbol)
			return
		}
		c.cache.Merge(q)
		c.complete(env, callResolved, outcome{env: env})

	case protocol.TypeValuation:
		c.complete(env, callResolved, outcome{env: env})

	case protocol.TypeError:
		c.complete(env, callErrored, outcome{err: protocol.ErrorFromResponse(env)})

	default:
		c.logger.Warn("Unknown message type", zap.String("type", env.Type))
	}
}

// complete hands a correlated response to its waiter. Broadcasts carry no id.
func (c *Client) complete(env protocol.Envelope, st callState, out outcome) {
	if env.ID == "" {
		if env.Type == protocol.TypeValuation || env.Type == protocol.TypeError {
			c.logger.Warn("Uncorrelated response", zap.String("type", env.Type), zap.String("message", env.Message))
		}
		return
	}
	if !c.pending.settle(env.ID, st, out) {
		c.logger.Warn("Dropping response for unknown or finished request",
			zap.String("id", env.ID), zap.String("type", env.Type))
	}
}

func (c *Client) reject(env protocol.Envelope, reason string) {
	c.logger.Warn("Malformed message", zap.String("type", env.Type), zap.String("reason", reason))
	if env.ID != "" {
		c.pending.settle(env.ID, callErrored, outcome{err: &protocol.ProtocolError{Reason: reason}})
	}
}

func (c *Client) setState(s ConnectionState) {
	if c.cache.SetState(s) && c.opts.OnState != nil {
		c.opts.OnState(s)
	}
}

// stopping reports whether Run should give up rather than redial.
func (c *Client) stopping(ctx context.Context) bool {
	select {
	case <-c.closed:
		return true
	default:
		return ctx.Err() != nil
	}
}

func (c *Client) exitErr(ctx context.Context) error {
	select {
	case <-c.closed:
		return nil
	default:
		return ctx.Err()
	}
}
