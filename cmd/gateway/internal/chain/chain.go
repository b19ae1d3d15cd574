package chain

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Chain is the canonical, mutable option chain. It is created once and
// mutated in place; callers serialize access (the hub holds its lock).
type Chain struct {
	symbol     string
	underlying models.Underlying
	strikes    []models.StrikeRow

	// token -> instrument inside strikes; strikes is never resized
	index map[string]*models.Instrument
}

// New validates rows and builds the token index. Rows are sorted by strike.
func New(symbol string, underlying models.Underlying, rows []models.StrikeRow) (*Chain, error) {
	underlying.Token = models.UnderlyingToken
	if underlying.ReferencePrice <= 0 || underlying.Price <= 0 {
		return nil, fmt.Errorf("%w: underlying prices must be positive", ErrInvalidCatalog)
	}

	strikes := make([]models.StrikeRow, len(rows))
	copy(strikes, rows)
	sort.Slice(strikes, func(i, j int) bool { return strikes[i].Strike < strikes[j].Strike })

	c := &Chain{
		symbol:     symbol,
		underlying: underlying,
		strikes:    strikes,
		index:      make(map[string]*models.Instrument, 2*len(strikes)),
	}

	for i := range c.strikes {
		row := &c.strikes[i]
		if i > 0 && row.Strike == c.strikes[i-1].Strike {
			return nil, fmt.Errorf("%w: duplicate strike %v", ErrInvalidCatalog, row.Strike)
		}
		if row.Call.Type != models.Call || row.Put.Type != models.Put {
			return nil, fmt.Errorf("%w: strike %v must hold one CALL and one PUT", ErrInvalidCatalog, row.Strike)
		}
		if row.Call.Strike != row.Strike || row.Put.Strike != row.Strike {
			return nil, fmt.Errorf("%w: strike %v row holds a mismatched instrument", ErrInvalidCatalog, row.Strike)
		}
		for _, inst := range []*models.Instrument{&row.Call, &row.Put} {
			if inst.Token == "" || inst.Token == models.UnderlyingToken {
				return nil, fmt.Errorf("%w: reserved or empty token %q", ErrInvalidCatalog, inst.Token)
			}
			if _, dup := c.index[inst.Token]; dup {
				return nil, fmt.Errorf("%w: duplicate token %q", ErrInvalidCatalog, inst.Token)
			}
			c.index[inst.Token] = inst
		}
	}
	return c, nil
}

func (c *Chain) Symbol() string { return c.symbol }

// Len returns the number of strike rows.
func (c *Chain) Len() int { return len(c.strikes) }

func (c *Chain) Underlying() models.Underlying { return c.underlying }

// Instrument returns a copy of the instrument for token.
func (c *Chain) Instrument(token string) (models.Instrument, bool) {
	inst, ok := c.index[token]
	if !ok {
		return models.Instrument{}, false
	}
	return *inst, true
}

// InstrumentTokens returns call and put tokens in strike order, calls first per row.
func (c *Chain) InstrumentTokens() []string {
	out := make([]string, 0, len(c.index))
	for _, row := range c.strikes {
		out = append(out, row.Call.Token, row.Put.Token)
	}
	return out
}

// Tokens returns every token including the underlying sentinel.
func (c *Chain) Tokens() []string {
	return append([]string{models.UnderlyingToken}, c.InstrumentTokens()...)
}

// Quote returns the current quote for any token, including the underlying.
func (c *Chain) Quote(token string) (models.Quote, bool) {
	if token == models.UnderlyingToken {
		return models.Quote{Price: c.underlying.Price, PercentChange: c.underlying.PercentChange}, true
	}
	inst, ok := c.index[token]
	if !ok {
		return models.Quote{}, false
	}
	return models.Quote{Price: inst.Price, PercentChange: inst.PercentChange}, true
}

// Quotes collects current quotes for the known tokens among tokens.
func (c *Chain) Quotes(tokens []string) models.TickDiff {
	out := make(models.TickDiff, len(tokens))
	for _, t := range tokens {
		if q, ok := c.Quote(t); ok {
			out[t] = q
		}
	}
	return out
}

// Apply writes diff into the chain. Unknown tokens are skipped and returned.
func (c *Chain) Apply(diff models.TickDiff) (unknown []string) {
	for token, q := range diff {
		if token == models.UnderlyingToken {
			c.underlying.Price = q.Price
			c.underlying.PercentChange = q.PercentChange
			continue
		}
		inst, ok := c.index[token]
		if !ok {
			unknown = append(unknown, token)
			continue
		}
		inst.Price = q.Price
		inst.PercentChange = q.PercentChange
	}
	return unknown
}

// Snapshot deep-copies the chain for serialization.
func (c *Chain) Snapshot() models.ChainSnapshot {
	rows := make([]models.StrikeRow, len(c.strikes))
	copy(rows, c.strikes)
	return models.ChainSnapshot{
		Symbol:          c.symbol,
		UnderlyingPrice: c.underlying.Price,
		Underlying:      c.underlying,
		Strikes:         rows,
	}
}
