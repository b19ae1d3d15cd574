package feedclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/pkg/models"
	"github.com/shubham-shewale/option-chain-feed/pkg/protocol"
)

const writeWait = 5 * time.Second

// Client keeps one logical connection to the feed alive across reconnects and
// shares it between any number of attached consumers. All state is owned by
// the goroutine started in New; methods post work to it.
type Client struct {
	cfg    Config
	logger *zap.Logger

	events    chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// owned by run
	state     State
	gen       uint64 // bumped whenever the current socket is abandoned
	conn      *websocket.Conn
	attempt   int
	retry     *time.Timer
	subs      []string
	snapshot  *models.ChainSnapshot
	index     map[string]*models.Instrument
	consumers map[int]Handlers
	nextID    int
}

func New(cfg Config, logger *zap.Logger) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		logger:    logger,
		events:    make(chan func(), 64),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		consumers: make(map[int]Handlers),
	}
	go c.run()
	return c
}

// Start opens the connection. Cancelling ctx closes the client.
func (c *Client) Start(ctx context.Context) error {
	if err := c.post(func() {
		if c.state == StateIdle {
			c.connect()
		}
	}); err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()
	return nil
}

// Close shuts the connection with a normal closure and stops the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
	<-c.done
}

// Subscribe adds tokens to the shared subscription list. While disconnected
// they are queued for the next connection; a failed or disconnected client
// starts reconnecting.
func (c *Client) Subscribe(tokens ...string) error {
	tokens = protocol.NormalizeTokens(tokens)
	if len(tokens) == 0 {
		return nil
	}
	return c.post(func() {
		added := c.addSubs(tokens)
		if c.state == StateOpen {
			c.sendCommand(protocol.TypeSubscribe, tokens...)
		}
		if len(added) > 0 {
			c.emitSubscriptions()
		}
		if c.state == StateFailed || c.state == StateDisconnected {
			c.reconnectNow()
		}
	})
}

func (c *Client) Unsubscribe(tokens ...string) error {
	tokens = protocol.NormalizeTokens(tokens)
	return c.post(func() {
		removed := c.removeSubs(tokens)
		if len(removed) == 0 {
			return
		}
		if c.state == StateOpen {
			c.sendCommand(protocol.TypeUnsubscribe, removed...)
		}
		c.emitSubscriptions()
	})
}

// Disconnect closes the connection normally and forgets every subscription.
// No reconnect follows until Reconnect or Subscribe is called.
func (c *Client) Disconnect() error {
	return c.post(func() {
		c.abandon(websocket.CloseNormalClosure)
		c.state = StateDisconnected
		c.subs = nil
		c.emitStatus(false)
		c.emitSubscriptions()
	})
}

// Reconnect starts a fresh connection cycle with the attempt counter reset.
// It does nothing while a connection is open or being dialled.
func (c *Client) Reconnect() error {
	return c.post(c.reconnectNow)
}

func (c *Client) RequestSnapshot() error {
	return c.call(func() error {
		if c.state != StateOpen {
			return ErrNotConnected
		}
		return c.sendCommand(protocol.TypeInitialDataRequest)
	})
}

func (c *Client) Ping() error {
	return c.call(func() error {
		if c.state != StateOpen {
			return ErrNotConnected
		}
		return c.sendCommand(protocol.TypePing)
	})
}

// Attach registers h and replays the cached snapshot, connection status and
// subscription list to it. The returned func detaches h.
func (c *Client) Attach(h Handlers) (detach func(), err error) {
	var id int
	err = c.call(func() error {
		id = c.nextID
		c.nextID++
		c.consumers[id] = h

		if c.snapshot != nil && h.OnInitialData != nil {
			h.OnInitialData(copySnapshot(c.snapshot))
		}
		if h.OnConnectionStatus != nil {
			h.OnConnectionStatus(c.state == StateOpen)
		}
		if len(c.subs) > 0 && h.OnSubscriptionUpdate != nil {
			h.OnSubscriptionUpdate(c.subscriptions())
		}
		return nil
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		_ = c.post(func() { delete(c.consumers, id) })
	}, nil
}

func (c *Client) Subscriptions() []string {
	var out []string
	_ = c.call(func() error {
		out = c.subscriptions()
		return nil
	})
	return out
}

func (c *Client) State() State {
	state := StateClosed
	_ = c.call(func() error {
		state = c.state
		return nil
	})
	return state
}

func (c *Client) Connected() bool { return c.State() == StateOpen }

func (c *Client) run() {
	defer close(c.done)

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case fn := <-c.events:
			fn()
		case <-ping.C:
			if c.state == StateOpen {
				c.sendCommand(protocol.TypePing)
			}
		case <-c.stop:
			c.abandon(websocket.CloseNormalClosure)
			c.state = StateClosed
			return
		}
	}
}

// post queues fn for the run goroutine.
func (c *Client) post(fn func()) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.events <- fn:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// call runs fn on the run goroutine and waits for its result.
func (c *Client) call(fn func() error) error {
	reply := make(chan error, 1)
	if err := c.post(func() { reply <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) connect() {
	c.gen++
	gen := c.gen
	if c.attempt == 0 {
		c.state = StateConnecting
	} else {
		c.state = StateReconnecting
	}
	c.logger.Debug("Dialing feed", zap.String("url", c.cfg.URL), zap.Int("attempt", c.attempt))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
		cancel()
		if c.post(func() { c.onDialed(gen, conn, err) }) != nil && conn != nil {
			conn.Close()
		}
	}()
}

func (c *Client) onDialed(gen uint64, conn *websocket.Conn, err error) {
	if gen != c.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.logger.Warn("Feed dial failed", zap.String("url", c.cfg.URL), zap.Error(err))
		c.scheduleRetry()
		return
	}

	c.conn = conn
	c.state = StateOpen
	c.attempt = 0
	go c.readLoop(gen, conn)
	c.logger.Info("Feed connected", zap.String("url", c.cfg.URL))

	c.emitStatus(true)
	if len(c.subs) > 0 {
		c.sendCommand(protocol.TypeSubscribe, c.subs...)
		c.emitSubscriptions()
	}
}

func (c *Client) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code := websocket.CloseAbnormalClosure
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				code = ce.Code
			}
			_ = c.post(func() { c.onClosed(gen, code, err) })
			return
		}
		if c.post(func() { c.onMessage(gen, data) }) != nil {
			return
		}
	}
}

func (c *Client) onClosed(gen uint64, code int, err error) {
	if gen != c.gen {
		return
	}
	c.conn = nil
	c.emitStatus(false)

	if code == websocket.CloseNormalClosure {
		c.logger.Info("Feed closed normally")
		c.gen++
		c.state = StateDisconnected
		return
	}
	c.logger.Warn("Feed connection lost", zap.Int("code", code), zap.Error(err))
	c.scheduleRetry()
}

func (c *Client) scheduleRetry() {
	c.gen++
	maxAttempts := c.cfg.MaxReconnectAttempts
	if c.attempt >= maxAttempts {
		c.state = StateFailed
		c.logger.Error("Giving up on feed", zap.Int("attempts", c.attempt))
		c.emitError("Failed to connect after maximum retry attempts")
		return
	}

	c.attempt++
	c.state = StateReconnecting
	delay := c.cfg.BaseReconnectDelay << (c.attempt - 1)
	c.emitReconnecting(c.attempt, maxAttempts)

	gen := c.gen
	c.retry = time.AfterFunc(delay, func() {
		_ = c.post(func() {
			if gen == c.gen && c.state == StateReconnecting {
				c.connect()
			}
		})
	})
}

func (c *Client) reconnectNow() {
	switch c.state {
	case StateOpen, StateConnecting, StateClosed:
		return
	}
	c.stopRetry()
	c.attempt = 0
	c.connect()
}

// abandon drops the current socket, if any, so events from it are ignored.
func (c *Client) abandon(code int) {
	c.gen++
	c.stopRetry()
	if c.conn == nil {
		return
	}
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline)
	c.conn.Close()
	c.conn = nil
}

func (c *Client) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

func (c *Client) onMessage(gen uint64, data []byte) {
	if gen != c.gen {
		return
	}
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Warn("Dropping malformed frame", zap.Error(err))
		return
	}

	switch resp.Type {
	case protocol.TypeInitialData:
		if resp.Data == nil {
			return
		}
		c.setSnapshot(resp.Data)
		for _, h := range c.consumers {
			if h.OnInitialData != nil {
				h.OnInitialData(copySnapshot(c.snapshot))
			}
		}
	case protocol.TypePriceUpdate:
		c.applyUpdates(resp.Updates)
		for _, h := range c.consumers {
			if h.OnPriceUpdate != nil {
				h.OnPriceUpdate(resp.Updates)
			}
		}
	case protocol.TypeConnectionStatus, protocol.TypePong:
		c.logger.Debug("Feed frame", zap.String("type", resp.Type))
	default:
		c.logger.Debug("Unknown frame type", zap.String("type", resp.Type))
	}
}

func (c *Client) sendCommand(msgType string, tokens ...string) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	b, err := protocol.Command(msgType, tokens...)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		// the read loop sees the broken socket and reports the close
		c.logger.Warn("Feed write failed", zap.String("type", msgType), zap.Error(err))
		c.conn.Close()
		return err
	}
	return nil
}

func (c *Client) addSubs(tokens []string) []string {
	var added []string
	for _, t := range tokens {
		if !contains(c.subs, t) {
			c.subs = append(c.subs, t)
			added = append(added, t)
		}
	}
	return added
}

func (c *Client) removeSubs(tokens []string) []string {
	var removed []string
	kept := c.subs[:0]
	for _, t := range c.subs {
		if contains(tokens, t) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	c.subs = kept
	return removed
}

func (c *Client) subscriptions() []string {
	return append([]string{}, c.subs...)
}

func (c *Client) setSnapshot(snap *models.ChainSnapshot) {
	c.snapshot = snap
	c.index = make(map[string]*models.Instrument, 2*len(snap.Strikes))
	for i := range snap.Strikes {
		row := &snap.Strikes[i]
		c.index[row.Call.Token] = &row.Call
		c.index[row.Put.Token] = &row.Put
	}
}

// applyUpdates keeps the cached snapshot current for consumers attaching later.
func (c *Client) applyUpdates(updates models.TickDiff) {
	if c.snapshot == nil {
		return
	}
	for token, q := range updates {
		if token == models.UnderlyingToken {
			c.snapshot.Underlying.Price = q.Price
			c.snapshot.Underlying.PercentChange = q.PercentChange
			c.snapshot.UnderlyingPrice = q.Price
			continue
		}
		if inst, ok := c.index[token]; ok {
			inst.Price = q.Price
			inst.PercentChange = q.PercentChange
		}
	}
}

func (c *Client) emitStatus(connected bool) {
	for _, h := range c.consumers {
		if h.OnConnectionStatus != nil {
			h.OnConnectionStatus(connected)
		}
	}
}

func (c *Client) emitSubscriptions() {
	for _, h := range c.consumers {
		if h.OnSubscriptionUpdate != nil {
			h.OnSubscriptionUpdate(c.subscriptions())
		}
	}
}

func (c *Client) emitReconnecting(attempt, maxAttempts int) {
	for _, h := range c.consumers {
		if h.OnReconnecting != nil {
			h.OnReconnecting(attempt, maxAttempts)
		}
	}
}

func (c *Client) emitError(msg string) {
	for _, h := range c.consumers {
		if h.OnError != nil {
			h.OnError(msg)
		}
	}
}

func copySnapshot(s *models.ChainSnapshot) models.ChainSnapshot {
	out := *s
	out.Strikes = append([]models.StrikeRow(nil), s.Strikes...)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
