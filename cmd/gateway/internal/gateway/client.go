package gateway

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/metrics"
)

const (
	defaultMaxMessageSize = 512 * 1024
	defaultSendBuffer     = 256
	writeWait             = 5 * time.Second
)

// Options tunes one connection.
type Options struct {
	SendBuffer        int
	MaxMessageSize    int64
	HeartbeatInterval time.Duration
	InboundRate       float64 // frames per second, 0 = unlimited
	InboundBurst      int
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 30 * time.Second
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = 1
	}
	return o
}

type ClientAdapter struct {
	id      string
	conn    net.Conn
	hub     *hub.Hub
	send    chan []byte
	pongs   chan []byte
	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter

	maxMessageSize int64
	pingPeriod     time.Duration

	mu     sync.Mutex
	closed bool
}

func NewClient(conn net.Conn, h *hub.Hub, logger *zap.Logger, m *metrics.Metrics, opts Options) *ClientAdapter {
	opts = opts.withDefaults()
	limit := rate.Inf
	if opts.InboundRate > 0 {
		limit = rate.Limit(opts.InboundRate)
	}
	id := uuid.NewString()
	return &ClientAdapter{
		id:             id,
		conn:           conn,
		hub:            h,
		send:           make(chan []byte, opts.SendBuffer),
		pongs:          make(chan []byte, 1),
		logger:         logger.With(zap.String("conn_id", id), zap.String("remote", conn.RemoteAddr().String())),
		metrics:        m,
		limiter:        rate.NewLimiter(limit, opts.InboundBurst),
		maxMessageSize: opts.MaxMessageSize,
		pingPeriod:     opts.HeartbeatInterval,
	}
}

// Start registers the connection with the hub and runs its pumps.
func (c *ClientAdapter) Start() {
	go c.writePump()
	c.hub.Register(c)
	go c.readPump()
}

func (c *ClientAdapter) ID() string { return c.id }

// Close stops the writer, which then closes the socket. Safe to call more than once.
func (c *ClientAdapter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// SendBytes queues b without blocking. It returns false when the queue is
// full or the connection is closed.
func (c *ClientAdapter) SendBytes(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *ClientAdapter) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		header, err := ws.ReadHeader(c.conn)
		if err != nil {
			if err != io.EOF {
				c.logger.Debug("Read failed", zap.Error(err))
			}
			return
		}

		if header.Length > c.maxMessageSize {
			c.logger.Warn("Msg too big", zap.Int64("size", header.Length))
			return
		}

		if !header.Fin {
			c.logger.Warn("Client sent fragmented message (not supported)")
			return
		}

		payload := make([]byte, header.Length)
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return
		}

		if header.Masked {
			ws.Cipher(payload, header.Mask, 0)
		}

		switch header.OpCode {
		case ws.OpClose:
			return
		case ws.OpPing:
			select {
			case c.pongs <- payload:
			default:
			}
		case ws.OpPong:
			c.logger.Debug("Pong received")
		case ws.OpText:
			if !c.limiter.Allow() {
				c.logger.Warn("Inbound rate exceeded, dropping frame")
				c.metrics.InboundRejected("rate_limited")
				continue
			}
			c.hub.HandleMessage(c, payload)
		default:
			c.logger.Debug("Ignoring frame", zap.Uint8("opcode", uint8(header.OpCode)))
		}
	}
}

func (c *ClientAdapter) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.Write(ws.CompiledCloseNormalClosure)
				return
			}
			if err := wsutil.WriteServerText(c.conn, msg); err != nil {
				c.logger.Debug("Write failed", zap.Error(err))
				return
			}

		case payload := <-c.pongs:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPong, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsutil.WriteServerMessage(c.conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
