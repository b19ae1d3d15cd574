package testutils

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/chain"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/generator"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
	"github.com/shubham-shewale/option-chain-feed/pkg/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	RawBytes [][]byte // Stores raw frames as queued
	Closed   bool
	Full     bool // Simulates a full send queue
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendBytes(b []byte) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Full {
		return false
	}
	m.RawBytes = append(m.RawBytes, b)
	return true
}

// Messages decodes every frame received so far.
func (m *MockClient) Messages() []protocol.Response {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	out := make([]protocol.Response, 0, len(m.RawBytes))
	for _, b := range m.RawBytes {
		var resp protocol.Response
		if err := json.Unmarshal(b, &resp); err == nil {
			out = append(out, resp)
		}
	}
	return out
}

// OfType returns the decoded frames of one type.
func (m *MockClient) OfType(msgType string) []protocol.Response {
	var out []protocol.Response
	for _, resp := range m.Messages() {
		if resp.Type == msgType {
			out = append(out, resp)
		}
	}
	return out
}

func (m *MockClient) LastMsgType() string {
	msgs := m.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Type
}

// Reset forgets the frames received so far.
func (m *MockClient) Reset() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = nil
}

func (m *MockClient) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// MockRand returns fixed values. PermVal, when set, is returned by Perm.
type MockRand struct {
	ValFloat float64
	PermVal  []int
}

func (m *MockRand) Float64() float64 { return m.ValFloat }
func (m *MockRand) Perm(n int) []int {
	if m.PermVal != nil {
		return m.PermVal
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// MockMutator returns Diff on every tick and counts calls.
type MockMutator struct {
	Diff  models.TickDiff
	Calls int
}

func (m *MockMutator) Tick(c *chain.Chain, rnd generator.Rand) models.TickDiff {
	m.Calls++
	out := make(models.TickDiff, len(m.Diff))
	for k, v := range m.Diff {
		out[k] = v
	}
	return out
}

// MockPublisher records published ticks.
type MockPublisher struct {
	Events []models.TickEvent
	Mu     sync.Mutex
}

func (m *MockPublisher) Publish(ev models.TickEvent) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Events = append(m.Events, ev)
}

// NewTestChain builds a small chain: strikes 17400..17600, underlying 17500.
func NewTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	c, err := generator.NewCatalog(generator.CatalogConfig{
		Symbol:          "NIFTY",
		BaseStrike:      17500,
		StrikeStep:      100,
		StrikeCount:     3,
		UnderlyingPrice: 17500,
	}, &MockRand{ValFloat: 0.5})
	if err != nil {
		t.Fatalf("build chain: %v", err)
	}
	return c
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		t.Errorf("Assertion failed: %s", msg)
	}
}

// Eventually polls cond for up to two seconds.
func Eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
