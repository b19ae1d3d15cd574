package models

// UnderlyingToken is the sentinel token of the underlying pseudo-instrument.
const UnderlyingToken = "UNDERLYING"

// Kind distinguishes calls from puts.
type Kind string

const (
	Call Kind = "CALL"
	Put  Kind = "PUT"
)

// Instrument is one option contract in the chain.
type Instrument struct {
	Token          string  `json:"token"`
	Strike         float64 `json:"strike"`
	Type           Kind    `json:"type"`
	ReferencePrice float64 `json:"referencePrice"` // prior session close
	Price          float64 `json:"price"`
	PercentChange  float64 `json:"percentChange"`
}

// Underlying is the reference instrument the chain is written on.
type Underlying struct {
	Token          string  `json:"token"`
	ReferencePrice float64 `json:"referencePrice"`
	Price          float64 `json:"price"`
	PercentChange  float64 `json:"percentChange"`
}

// StrikeRow pairs the call and put sharing a strike.
type StrikeRow struct {
	Strike float64    `json:"strike"`
	Call   Instrument `json:"call"`
	Put    Instrument `json:"put"`
}

// ChainSnapshot is the full chain as sent in INITIAL_DATA frames.
type ChainSnapshot struct {
	Symbol          string      `json:"symbol,omitempty"`
	UnderlyingPrice float64     `json:"underlyingPrice"`
	Underlying      Underlying  `json:"underlying"`
	Strikes         []StrikeRow `json:"strikes"`
}

// Quote is the mutable part of an instrument.
type Quote struct {
	Price         float64 `json:"price"`
	PercentChange float64 `json:"percentChange"`
}

// TickDiff maps token -> new quote for one tick.
type TickDiff map[string]Quote

// TickEvent is a tick as handed to external sinks.
type TickEvent struct {
	Seq       int64    `json:"seq_id"`    // monotonic per server lifetime
	Symbol    string   `json:"symbol"`
	Timestamp int64    `json:"timestamp"` // unix micro
	Updates   TickDiff `json:"updates"`
}
