package hub

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/chain"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/generator"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
	"github.com/shubham-shewale/option-chain-feed/pkg/protocol"
)

// ClientInterface is the hub's view of a connection. SendBytes must not
// block; it reports false when the frame was dropped.
type ClientInterface interface {
	ID() string
	SendBytes(b []byte) bool
	Close()
}

// TickPublisher receives every applied tick. Publish must not block.
type TickPublisher interface {
	Publish(ev models.TickEvent)
}

type Config struct {
	TickInterval time.Duration
}

// Hub owns the chain, the registry and the set of live connections.
// Register, Unregister, HandleMessage and Tick are serialized by mu.
type Hub struct {
	cfg       Config
	chain     *chain.Chain
	registry  *Registry
	mutator   generator.Mutator
	rnd       generator.Rand
	publisher TickPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]ClientInterface
	seq     int64

	connectedFrame []byte
	pongFrame      []byte
}

func NewHub(cfg Config, ch *chain.Chain, mut generator.Mutator, rnd generator.Rand, pub TickPublisher, m *metrics.Metrics, logger *zap.Logger) *Hub {
	return &Hub{
		cfg:            cfg,
		chain:          ch,
		registry:       NewRegistry(),
		mutator:        mut,
		rnd:            rnd,
		publisher:      pub,
		metrics:        m,
		logger:         logger,
		clients:        make(map[string]ClientInterface),
		connectedFrame: protocol.ConnectedFrame(),
		pongFrame:      protocol.PongFrame(),
	}
}

// Registry exposes the subscription registry for inspection.
func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Register admits a connection with an empty subscription set and sends
// CONNECTION_STATUS followed by the full chain.
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.ID()
	if _, ok := h.clients[id]; ok {
		return
	}
	h.clients[id] = client
	h.registry.Register(id)
	h.metrics.ConnectionOpened()
	h.logger.Info("Client connected", zap.String("conn_id", id), zap.Int("clients", len(h.clients)))

	h.send(client, protocol.TypeConnectionStatus, h.connectedFrame)
	h.sendSnapshot(client)
}

// Unregister drops the connection's subscriptions and closes it. Safe to call more than once.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.ID()
	if h.registry.Drop(id) {
		delete(h.clients, id)
		h.metrics.ConnectionClosed()
		h.logger.Info("Client disconnected", zap.String("conn_id", id), zap.Int("clients", len(h.clients)))
	}
	client.Close()
}

// HandleMessage dispatches one inbound text frame. Bad frames are logged and dropped.
func (h *Hub) HandleMessage(client ClientInterface, payload []byte) {
	req, err := protocol.ParseRequest(payload)
	if err != nil {
		h.logger.Warn("Dropping malformed frame", zap.String("conn_id", client.ID()), zap.Error(err))
		h.metrics.InboundRejected("malformed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.ID()
	if !h.registry.Registered(id) {
		return
	}

	switch req.Type {
	case protocol.TypeSubscribe:
		added := h.registry.Subscribe(id, req.Tokens)
		h.logger.Debug("Subscribed", zap.String("conn_id", id), zap.Strings("tokens", added))

		quotes := h.chain.Quotes(req.Tokens)
		if len(quotes) == 0 {
			return
		}
		h.sendUpdates(client, quotes)

	case protocol.TypeUnsubscribe:
		removed := h.registry.Unsubscribe(id, req.Tokens)
		h.logger.Debug("Unsubscribed", zap.String("conn_id", id), zap.Strings("tokens", removed))

	case protocol.TypePing:
		h.send(client, protocol.TypePong, h.pongFrame)

	case protocol.TypeInitialDataRequest:
		h.sendSnapshot(client)

	default:
		h.logger.Warn("Unknown message type", zap.String("conn_id", id), zap.String("type", req.Type))
		h.metrics.InboundRejected("unknown_type")
	}
}

// Tick mutates the chain once and pushes each connection the changed tokens
// it subscribes to. With no connections the tick is skipped and nil returned.
func (h *Hub) Tick() models.TickDiff {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.clients) == 0 {
		h.metrics.TickSkipped()
		return nil
	}

	diff := h.mutator.Tick(h.chain, h.rnd)
	if unknown := h.chain.Apply(diff); len(unknown) > 0 {
		h.logger.Error("Mutator produced unknown tokens", zap.Strings("tokens", unknown))
	}
	h.metrics.Tick()

	perConn := make(map[string]models.TickDiff)
	for token, q := range diff {
		for _, id := range h.registry.InterestedIn(token) {
			if perConn[id] == nil {
				perConn[id] = make(models.TickDiff)
			}
			perConn[id][token] = q
		}
	}
	for id, updates := range perConn {
		if client, ok := h.clients[id]; ok {
			h.sendUpdates(client, updates)
		}
	}

	h.seq++
	if h.publisher != nil && len(diff) > 0 {
		h.publisher.Publish(models.TickEvent{
			Seq:       h.seq,
			Symbol:    h.chain.Symbol(),
			Timestamp: time.Now().UnixMicro(),
			Updates:   diff,
		})
	}
	return diff
}

// Run ticks every TickInterval until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	h.logger.Info("Tick loop started", zap.Duration("interval", h.cfg.TickInterval))
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("Tick loop stopped")
			return
		case <-ticker.C:
			h.Tick()
		}
	}
}

// Shutdown closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		h.registry.Drop(id)
		h.metrics.ConnectionClosed()
		client.Close()
	}
	h.clients = make(map[string]ClientInterface)
}

func (h *Hub) sendSnapshot(client ClientInterface) {
	snap := h.chain.Snapshot()
	b, err := protocol.Encode(protocol.Response{Type: protocol.TypeInitialData, Data: &snap})
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.Error(err))
		return
	}
	h.send(client, protocol.TypeInitialData, b)
}

func (h *Hub) sendUpdates(client ClientInterface, updates models.TickDiff) {
	b, err := protocol.Encode(protocol.Response{Type: protocol.TypePriceUpdate, Updates: updates})
	if err != nil {
		h.logger.Error("Failed to encode price update", zap.Error(err))
		return
	}
	h.send(client, protocol.TypePriceUpdate, b)
}

func (h *Hub) send(client ClientInterface, frameType string, b []byte) {
	ok := client.SendBytes(b)
	h.metrics.FrameSent(frameType, ok)
	if !ok {
		h.logger.Warn("Dropping frame for slow client", zap.String("conn_id", client.ID()), zap.String("type", frameType))
	}
}
