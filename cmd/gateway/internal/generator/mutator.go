package generator

import (
	"math"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/chain"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

// Mutator produces the next tick's price changes. Implementations only read
// the chain; the caller applies the returned diff.
type Mutator interface {
	Tick(c *chain.Chain, rnd Rand) models.TickDiff
}

type MutatorConfig struct {
	MaxPerTick            int     // 0 = no cap
	SelectFraction        float64 // share of instruments touched per tick
	MaxDelta              float64 // instruments move within ±MaxDelta of the reference price
	UnderlyingProbability float64
	UnderlyingMaxDelta    float64 // underlying moves within ±UnderlyingMaxDelta of its current price
	MinPrice              float64
}

func DefaultMutatorConfig() MutatorConfig {
	return MutatorConfig{
		MaxPerTick:            10,
		SelectFraction:        0.3,
		MaxDelta:              0.05,
		UnderlyingProbability: 0.2,
		UnderlyingMaxDelta:    0.01,
		MinPrice:              0.05,
	}
}

// RandomWalk quotes instruments around their reference price and walks the
// underlying from its current price.
type RandomWalk struct {
	cfg MutatorConfig
}

var _ Mutator = (*RandomWalk)(nil)

func NewRandomWalk(cfg MutatorConfig) *RandomWalk {
	return &RandomWalk{cfg: cfg}
}

func (m *RandomWalk) Tick(c *chain.Chain, rnd Rand) models.TickDiff {
	tokens := c.InstrumentTokens()
	n := m.selectCount(len(tokens))
	diff := make(models.TickDiff, n+1)

	for _, i := range rnd.Perm(len(tokens))[:n] {
		inst, _ := c.Instrument(tokens[i])
		price := m.clamp(inst.ReferencePrice * (1 + symmetric(rnd, m.cfg.MaxDelta)))
		diff[inst.Token] = models.Quote{
			Price:         price,
			PercentChange: percentChange(price, inst.ReferencePrice),
		}
	}

	if rnd.Float64() < m.cfg.UnderlyingProbability {
		u := c.Underlying()
		price := m.clamp(u.Price * (1 + symmetric(rnd, m.cfg.UnderlyingMaxDelta)))
		diff[models.UnderlyingToken] = models.Quote{
			Price:         price,
			PercentChange: percentChange(price, u.ReferencePrice),
		}
	}
	return diff
}

func (m *RandomWalk) selectCount(total int) int {
	n := int(math.Ceil(m.cfg.SelectFraction * float64(total)))
	if m.cfg.MaxPerTick > 0 && n > m.cfg.MaxPerTick {
		n = m.cfg.MaxPerTick
	}
	if n > total {
		n = total
	}
	return n
}

func (m *RandomWalk) clamp(price float64) float64 {
	return math.Max(m.cfg.MinPrice, round2(price))
}

// symmetric draws uniformly from [-bound, +bound).
func symmetric(rnd Rand, bound float64) float64 {
	return (rnd.Float64()*2 - 1) * bound
}
