package hub_test

import (
	"bytes"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
	"github.com/shubham-shewale/option-chain-feed/pkg/protocol"
)

func setup(t *testing.T, diff models.TickDiff) (*hub.Hub, *testutils.MockMutator, *testutils.MockPublisher) {
	t.Helper()
	mut := &testutils.MockMutator{Diff: diff}
	pub := &testutils.MockPublisher{}
	h := hub.NewHub(hub.Config{}, testutils.NewTestChain(t), mut, &testutils.MockRand{}, pub, nil, zap.NewNop())
	return h, mut, pub
}

func connect(h *hub.Hub, id string) *testutils.MockClient {
	c := testutils.NewMockClient(id)
	h.Register(c)
	c.Reset()
	return c
}

func send(h *hub.Hub, c *testutils.MockClient, msgType string, tokens ...string) {
	b, _ := protocol.Command(msgType, tokens...)
	h.HandleMessage(c, b)
}

func TestHub_Register_SendsStatusThenSnapshot(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := testutils.NewMockClient("c1")

	h.Register(c)

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 frames on connect, got %d", len(msgs))
	}
	if msgs[0].Type != protocol.TypeConnectionStatus || msgs[0].Status != protocol.StatusConnected {
		t.Errorf("First frame should be CONNECTION_STATUS/CONNECTED, got %+v", msgs[0])
	}
	if msgs[1].Type != protocol.TypeInitialData || msgs[1].Data == nil {
		t.Fatalf("Second frame should be INITIAL_DATA, got %+v", msgs[1])
	}
	if len(msgs[1].Data.Strikes) != 3 {
		t.Errorf("Expected 3 strikes in snapshot, got %d", len(msgs[1].Data.Strikes))
	}
	if got := h.Registry().TokensFor("c1"); len(got) != 0 {
		t.Errorf("New connection should start with no subscriptions, got %v", got)
	}
}

func TestHub_Subscribe_RepliesWithKnownTokens(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := connect(h, "c1")

	send(h, c, protocol.TypeSubscribe, "CALL_17500", "UNDERLYING", "NOT_A_TOKEN")

	updates := c.OfType(protocol.TypePriceUpdate)
	if len(updates) != 1 {
		t.Fatalf("Expected exactly one PRICE_UPDATE, got %d", len(updates))
	}
	got := updates[0].Updates
	if len(got) != 2 {
		t.Fatalf("Expected 2 quotes, got %v", got)
	}
	if _, ok := got["NOT_A_TOKEN"]; ok {
		t.Errorf("Unknown token should not be quoted")
	}
	if got[models.UnderlyingToken].Price != 17500 {
		t.Errorf("Expected underlying 17500, got %v", got[models.UnderlyingToken].Price)
	}

	// Unknown tokens are still recorded
	want := []string{"CALL_17500", "NOT_A_TOKEN", "UNDERLYING"}
	if tokens := h.Registry().TokensFor("c1"); !equal(tokens, want) {
		t.Errorf("TokensFor = %v, want %v", tokens, want)
	}
}

func TestHub_Subscribe_OnlyUnknownTokensSendsNothing(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := connect(h, "c1")

	send(h, c, protocol.TypeSubscribe, "FOO", "BAR")

	if c.Count() != 0 {
		t.Errorf("Expected no frame, got %d", c.Count())
	}
}

func TestHub_Subscribe_Idempotency(t *testing.T) {
	h, _, _ := setup(t, models.TickDiff{"CALL_17500": {Price: 520, PercentChange: 0.97}})
	c := connect(h, "c1")

	send(h, c, protocol.TypeSubscribe, "CALL_17500")
	send(h, c, protocol.TypeSubscribe, "CALL_17500")

	if n := len(c.OfType(protocol.TypePriceUpdate)); n != 2 {
		t.Errorf("Each SUBSCRIBE should get one reply, got %d", n)
	}
	if tokens := h.Registry().TokensFor("c1"); !equal(tokens, []string{"CALL_17500"}) {
		t.Errorf("Set should hold the token once, got %v", tokens)
	}

	c.Reset()
	h.Tick()
	if n := len(c.OfType(protocol.TypePriceUpdate)); n != 1 {
		t.Errorf("Double subscribe must not duplicate tick frames, got %d", n)
	}
}

func TestHub_Unsubscribe_Logic(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := connect(h, "c1")

	send(h, c, protocol.TypeSubscribe, "CALL_17400", "PUT_17400", "UNDERLYING")
	c.Reset()
	send(h, c, protocol.TypeUnsubscribe, "PUT_17400", "NEVER_SUBSCRIBED")

	if c.Count() != 0 {
		t.Errorf("UNSUBSCRIBE should not be answered")
	}
	want := []string{"CALL_17400", "UNDERLYING"}
	if tokens := h.Registry().TokensFor("c1"); !equal(tokens, want) {
		t.Errorf("TokensFor = %v, want %v", tokens, want)
	}
}

func TestHub_Tick_ZeroConnectionsSkips(t *testing.T) {
	ch := testutils.NewTestChain(t)
	mut := &testutils.MockMutator{Diff: models.TickDiff{"CALL_17500": {Price: 1}, models.UnderlyingToken: {Price: 1}}}
	pub := &testutils.MockPublisher{}
	h := hub.NewHub(hub.Config{}, ch, mut, &testutils.MockRand{}, pub, nil, zap.NewNop())

	before := ch.Snapshot()
	if diff := h.Tick(); diff != nil {
		t.Errorf("Expected nil diff, got %v", diff)
	}
	if after := ch.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("Chain changed without connections:\nbefore %+v\nafter  %+v", before, after)
	}
	if mut.Calls != 0 {
		t.Errorf("Mutator should not run without connections")
	}
	if len(pub.Events) != 0 {
		t.Errorf("Nothing should be published")
	}
}

func TestHub_Tick_DisjointSubscriptions(t *testing.T) {
	h, _, pub := setup(t, models.TickDiff{
		"CALL_17400": {Price: 500, PercentChange: -2.91},
		"PUT_17600":  {Price: 530, PercentChange: 2.91},
	})
	a := connect(h, "a")
	b := connect(h, "b")
	idle := connect(h, "idle")

	send(h, a, protocol.TypeSubscribe, "CALL_17400")
	send(h, b, protocol.TypeSubscribe, "PUT_17600")
	a.Reset()
	b.Reset()

	h.Tick()

	aUpdates := a.OfType(protocol.TypePriceUpdate)
	bUpdates := b.OfType(protocol.TypePriceUpdate)
	if len(aUpdates) != 1 || len(bUpdates) != 1 {
		t.Fatalf("Expected one frame each, got a=%d b=%d", len(aUpdates), len(bUpdates))
	}
	if _, ok := aUpdates[0].Updates["CALL_17400"]; !ok || len(aUpdates[0].Updates) != 1 {
		t.Errorf("a should only see CALL_17400, got %v", aUpdates[0].Updates)
	}
	if _, ok := bUpdates[0].Updates["PUT_17600"]; !ok || len(bUpdates[0].Updates) != 1 {
		t.Errorf("b should only see PUT_17600, got %v", bUpdates[0].Updates)
	}
	if idle.Count() != 0 {
		t.Errorf("Connection with empty set must receive no frame")
	}

	if len(pub.Events) != 1 || pub.Events[0].Seq != 1 || len(pub.Events[0].Updates) != 2 {
		t.Errorf("Expected one published tick with the full diff, got %+v", pub.Events)
	}
}

func TestHub_Tick_AppliesDiffToSnapshot(t *testing.T) {
	h, _, _ := setup(t, models.TickDiff{"CALL_17500": {Price: 600, PercentChange: 14.29}})
	c := connect(h, "c1")

	h.Tick()
	send(h, c, protocol.TypeInitialDataRequest)

	snaps := c.OfType(protocol.TypeInitialData)
	if len(snaps) != 1 {
		t.Fatalf("Expected snapshot reply, got %d", len(snaps))
	}
	if got := snaps[0].Data.Strikes[1].Call.Price; got != 600 {
		t.Errorf("Snapshot should reflect the tick, got %v", got)
	}
}

func TestHub_Ping_ReturnsIdenticalPong(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := connect(h, "c1")

	send(h, c, protocol.TypePing)
	send(h, c, protocol.TypePing)

	if c.Count() != 2 {
		t.Fatalf("Expected 2 PONG frames, got %d", c.Count())
	}
	if !bytes.Equal(c.RawBytes[0], c.RawBytes[1]) || &c.RawBytes[0][0] != &c.RawBytes[1][0] {
		t.Errorf("PONG frames should share the precomputed bytes")
	}
	if c.LastMsgType() != protocol.TypePong {
		t.Errorf("Expected PONG, got %s", c.LastMsgType())
	}
}

func TestHub_MalformedFramesAreDropped(t *testing.T) {
	h, _, _ := setup(t, nil)
	c := connect(h, "c1")

	for _, raw := range []string{
		`{ "type": "SUBSC`,
		`{"tokens":["CALL_17500"]}`,
		`{"type":"SUBSCRIBE"}`,
		`{"type":"SUBSCRIBE","tokens":"CALL_17500"}`,
		`{"type":"WHATEVER"}`,
	} {
		h.HandleMessage(c, []byte(raw))
	}

	if c.Count() != 0 || c.Closed {
		t.Errorf("Bad frames should be dropped silently and keep the connection open")
	}
	if tokens := h.Registry().TokensFor("c1"); len(tokens) != 0 {
		t.Errorf("No subscription should result, got %v", tokens)
	}
}

func TestHub_Unregister_DropsSubscriptions(t *testing.T) {
	h, _, _ := setup(t, models.TickDiff{"CALL_17500": {Price: 520}})
	c := connect(h, "c1")
	send(h, c, protocol.TypeSubscribe, "CALL_17500")

	h.Unregister(c)
	h.Unregister(c)

	if !c.Closed {
		t.Errorf("Client should be closed")
	}
	if h.Registry().Len() != 0 || h.ClientCount() != 0 {
		t.Errorf("Registry should be empty after close")
	}
	if tokens := h.Registry().TokensFor("c1"); len(tokens) != 0 {
		t.Errorf("Dropped connection should report no tokens, got %v", tokens)
	}

	c.Reset()
	send(h, c, protocol.TypeSubscribe, "CALL_17500")
	h.Tick()
	if c.Count() != 0 {
		t.Errorf("Closed connection must not receive frames")
	}
}

func TestHub_SlowClientDoesNotBlockOthers(t *testing.T) {
	h, _, _ := setup(t, models.TickDiff{"CALL_17500": {Price: 520}})
	slow := connect(h, "slow")
	fast := connect(h, "fast")
	send(h, slow, protocol.TypeSubscribe, "CALL_17500")
	send(h, fast, protocol.TypeSubscribe, "CALL_17500")
	fast.Reset()

	slow.Mu.Lock()
	slow.Full = true
	slow.Mu.Unlock()

	h.Tick()

	if len(fast.OfType(protocol.TypePriceUpdate)) != 1 {
		t.Errorf("Fast client should still receive the tick")
	}
	if slow.Closed {
		t.Errorf("A full queue drops frames, it does not close the connection")
	}
}

func TestHub_Shutdown_ClosesClients(t *testing.T) {
	h, _, _ := setup(t, nil)
	a := connect(h, "a")
	b := connect(h, "b")

	h.Shutdown()

	if !a.Closed || !b.Closed || h.ClientCount() != 0 {
		t.Errorf("Shutdown should close and forget every client")
	}
}

func TestHub_RaceCondition(t *testing.T) {
	// Run with `go test -race ./...`
	h, _, _ := setup(t, models.TickDiff{"CALL_17500": {Price: 520}})
	c := connect(h, "c1")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		send(h, c, protocol.TypeSubscribe, "CALL_17500")
	}()
	go func() {
		defer wg.Done()
		h.Tick()
	}()
	go func() {
		defer wg.Done()
		h.Unregister(c)
	}()
	wg.Wait()
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
