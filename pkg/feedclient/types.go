package feedclient

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shubham-shewale/option-chain-feed/pkg/config"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

var (
	ErrClosed       = errors.New("feed client closed")
	ErrNotConnected = errors.New("feed client not connected")
)

// State is the lifecycle of the client's one logical connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed       // reconnect attempts exhausted
	StateDisconnected // closed on request
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateClosed:
		return "CLOSED"
	}
	return "UNKNOWN"
}

type Config struct {
	URL                  string
	MaxReconnectAttempts int
	BaseReconnectDelay   time.Duration
	ConnectTimeout       time.Duration
	PingInterval         time.Duration

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// ConfigFrom maps the shared client settings.
func ConfigFrom(cfg config.ClientConfig) Config {
	return Config{
		URL:                  cfg.WSURL,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		BaseReconnectDelay:   cfg.BaseReconnectDelay,
		ConnectTimeout:       cfg.ConnectTimeout,
		PingInterval:         cfg.PingInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts < 0 {
		c.MaxReconnectAttempts = 0
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = 500 * time.Millisecond
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
	return c
}

// Handlers receive client events. They run on the client's goroutine, so
// they must return promptly and must not call back into the Client.
// Nil handlers are skipped.
type Handlers struct {
	OnInitialData        func(snapshot models.ChainSnapshot)
	OnPriceUpdate        func(updates models.TickDiff)
	OnSubscriptionUpdate func(tokens []string)
	OnConnectionStatus   func(connected bool)
	OnReconnecting       func(attempt, maxAttempts int)
	OnError              func(message string)
}
