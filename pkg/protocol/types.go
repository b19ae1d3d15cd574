package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

// Server -> client frame types.
const (
	TypeConnectionStatus = "CONNECTION_STATUS"
	TypeInitialData      = "INITIAL_DATA"
	TypePriceUpdate      = "PRICE_UPDATE"
	TypePong             = "PONG"
)

// Client -> server frame types.
const (
	TypeSubscribe          = "SUBSCRIBE"
	TypeUnsubscribe        = "UNSUBSCRIBE"
	TypePing               = "PING"
	TypeInitialDataRequest = "INITIAL_DATA_REQUEST"
)

const StatusConnected = "CONNECTED"

var (
	ErrMalformed     = errors.New("malformed frame")
	ErrMissingTokens = errors.New("tokens must be an array")
)

// Request is an inbound control frame.
type Request struct {
	Type   string   `json:"type"`
	Tokens []string `json:"tokens"`
}

// Response is an outbound frame. Only the fields relevant to Type are set.
type Response struct {
	Type    string                `json:"type"`
	Status  string                `json:"status,omitempty"`
	Data    *models.ChainSnapshot `json:"data,omitempty"`
	Updates models.TickDiff       `json:"updates,omitempty"`
}

// ParseRequest decodes an inbound frame. SUBSCRIBE and UNSUBSCRIBE must carry
// a tokens array; blank tokens are removed and the rest deduplicated in order.
func ParseRequest(payload []byte) (Request, error) {
	var raw struct {
		Type   string          `json:"type"`
		Tokens json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.Type == "" {
		return Request{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	req := Request{Type: raw.Type}
	if raw.Type != TypeSubscribe && raw.Type != TypeUnsubscribe {
		return req, nil
	}

	var tokens []string
	if len(raw.Tokens) == 0 || string(raw.Tokens) == "null" {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, ErrMissingTokens)
	}
	if err := json.Unmarshal(raw.Tokens, &tokens); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, ErrMissingTokens)
	}
	req.Tokens = NormalizeTokens(tokens)
	return req, nil
}

// NormalizeTokens trims, drops empties and deduplicates preserving order.
func NormalizeTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Encode marshals a frame.
func Encode(resp Response) ([]byte, error) {
	return json.Marshal(resp)
}

// ConnectedFrame returns the CONNECTION_STATUS frame sent on accept.
func ConnectedFrame() []byte {
	b, _ := Encode(Response{Type: TypeConnectionStatus, Status: StatusConnected})
	return b
}

// PongFrame returns the reply to PING.
func PongFrame() []byte {
	b, _ := Encode(Response{Type: TypePong})
	return b
}

// Command builds a client -> server frame. SUBSCRIBE and UNSUBSCRIBE always
// carry a tokens array, even when empty.
func Command(msgType string, tokens ...string) ([]byte, error) {
	switch msgType {
	case TypeSubscribe, TypeUnsubscribe:
		if tokens == nil {
			tokens = []string{}
		}
		return json.Marshal(Request{Type: msgType, Tokens: tokens})
	default:
		return json.Marshal(struct {
			Type string `json:"type"`
		}{Type: msgType})
	}
}
