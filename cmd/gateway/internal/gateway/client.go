package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ChakaliShivaKumar/Estocks-sub001/cmd/gateway/internal/hub"
	"github.com/ChakaliShivaKumar/Estocks-sub001/pkg/protocol"
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	SendBuffer     int
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		WriteWait:      5 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     50 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 512 * 1024,
	}
}

type ClientAdapter struct {
	id     string
	conn   net.Conn
	hub    *hub.Hub
	logger *zap.Logger
	opts   Options

	mu     sync.Mutex // guards send and closed
	send   chan []byte
	closed bool

	wmu sync.Mutex // serialises frames written to conn
}

var _ hub.ClientInterface = (*ClientAdapter)(nil)

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, opts Options) *ClientAdapter {
	id := uuid.NewString()
	return &ClientAdapter{
		id:     id,
		conn:   conn,
		hub:    h,
		send:   make(chan []byte, opts.SendBuffer),
		logger: logger.With(zap.String("conn", id), zap.String("remote", conn.RemoteAddr().String())),
		opts:   opts,
	}
}

// Start registers with the hub (which queues the initial snapshot) and spins
// up the pumps.
func (c *ClientAdapter) Start() {
	go c.writePump()
	c.hub.Register(c)
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close only closes the channel; writePump closes the conn.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *ClientAdapter) SendJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.SendBytes(b)
}

// SendBytes never blocks. A full buffer is reported so the hub can drop a
// subscriber that cannot keep up.
func (c *ClientAdapter) SendBytes(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.logger.Debug("Read header failed", zap.Error(err))
			}
			break
		}

		if header.Length > c.opts.MaxMessageSize {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			break
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			break
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			break
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		// any client traffic proves liveness
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPong:
			continue
		case ws.OpPing:
			c.wmu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			err := wsutil.WriteServerMessage(c.conn, ws.OpPong, payload)
			c.wmu.Unlock()
			if err != nil {
				return
			}
		case ws.OpText:
			c.handleText(payload)
		}
	}
}

// rawRequest decodes the envelope first so a bad payload can still be
// answered with the request's id.
type rawRequest struct {
	Action  string          `json:"action"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func (c *ClientAdapter) handleText(payload []byte) {
	var raw rawRequest
	if err := json.Unmarshal(payload, &raw); err != nil {
		c.SendJSON(protocol.ErrorResponse("", &protocol.ProtocolError{Reason: "invalid JSON"}))
		return
	}

	req := protocol.WSRequest{Action: raw.Action, ID: raw.ID}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, &req.Payload); err != nil {
			c.logger.Debug("Invalid payload", zap.String("action", raw.Action), zap.String("id", raw.ID), zap.Error(err))
			c.SendJSON(protocol.ErrorResponse(raw.ID, &protocol.ProtocolError{Reason: "invalid payload: " + err.Error()}))
			return
		}
	}

	req.Payload.Symbol = normalize(req.Payload.Symbol)
	for i := range req.Payload.Holdings {
		req.Payload.Holdings[i].Symbol = normalize(req.Payload.Holdings[i].Symbol)
	}

	c.logger.Debug("Request", zap.String("action", req.Action), zap.String("id", req.ID))
	c.hub.HandleCommand(c, req)
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.wmu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				c.conn.Write(ws.CompiledClose)
				c.wmu.Unlock()
				return
			}
			err := wsutil.WriteServerText(c.conn, msg)
			c.wmu.Unlock()
			if err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				c.hub.Unregister(c)
				return
			}

		case <-ticker.C:
			c.wmu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil)
			c.wmu.Unlock()
			if err != nil {
				c.hub.Unregister(c)
				return
			}
		}
	}
}

func normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
