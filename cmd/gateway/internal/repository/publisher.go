package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/metrics"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

const sinkWriteTimeout = 5 * time.Second

// Publisher hands ticks to the sinks off the tick path. Publish never blocks:
// when the buffer is full the tick is dropped.
type Publisher struct {
	sinks   []TickSink
	events  chan models.TickEvent
	logger  *zap.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	done      chan struct{}
	lastSeq   int64 // owned by Run
}

func NewPublisher(buffer int, logger *zap.Logger, m *metrics.Metrics, sinks ...TickSink) *Publisher {
	return &Publisher{
		sinks:   sinks,
		events:  make(chan models.TickEvent, buffer),
		logger:  logger,
		metrics: m,
		done:    make(chan struct{}),
	}
}

func (p *Publisher) Publish(ev models.TickEvent) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("Dropping slow tick", zap.Int64("seq_id", ev.Seq), zap.String("symbol", ev.Symbol))
	}
}

// Run drains queued ticks into every sink until ctx is done, then flushes
// what is still buffered and closes the sinks.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	p.logger.Info("Publisher Started", zap.Int("sinks", len(p.sinks)))

	for {
		select {
		case ev := <-p.events:
			p.write(ev)
		case <-ctx.Done():
			p.drain()
			p.closeSinks()
			return
		}
	}
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() { <-p.done }

func (p *Publisher) drain() {
	for {
		select {
		case ev := <-p.events:
			p.write(ev)
		default:
			return
		}
	}
}

func (p *Publisher) write(ev models.TickEvent) {
	if ev.Seq <= p.lastSeq {
		p.logger.Debug("Skipping duplicate tick", zap.Int64("seq_id", ev.Seq))
		return
	}
	p.lastSeq = ev.Seq

	for _, sink := range p.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		err := sink.Write(ctx, ev)
		cancel()
		if err != nil {
			p.metrics.SinkError(sink.Name())
			p.logger.Error("Sink write failed", zap.String("sink", sink.Name()), zap.Int64("seq_id", ev.Seq), zap.Error(err))
			continue
		}
		p.logger.Debug("Published", zap.String("sink", sink.Name()), zap.Int64("seq_id", ev.Seq))
	}
}

func (p *Publisher) closeSinks() {
	p.closeOnce.Do(func() {
		for _, sink := range p.sinks {
			if err := sink.Close(); err != nil {
				p.logger.Error("Error closing sink", zap.String("sink", sink.Name()), zap.Error(err))
			}
		}
	})
}
