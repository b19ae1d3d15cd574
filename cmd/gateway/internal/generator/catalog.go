package generator

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/chain"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

type CatalogConfig struct {
	Symbol          string
	BaseStrike      float64
	StrikeStep      float64
	StrikeCount     int
	UnderlyingPrice float64
}

// NewCatalog lays out StrikeCount strikes centred on BaseStrike, StrikeStep
// apart, and prices each contract from its distance to the underlying.
func NewCatalog(cfg CatalogConfig, rnd Rand) (*chain.Chain, error) {
	if cfg.StrikeCount <= 0 || cfg.StrikeStep <= 0 || cfg.UnderlyingPrice <= 0 {
		return nil, fmt.Errorf("%w: strike count, step and underlying price must be positive", chain.ErrInvalidCatalog)
	}

	start := cfg.BaseStrike - float64(cfg.StrikeCount/2)*cfg.StrikeStep
	rows := make([]models.StrikeRow, 0, cfg.StrikeCount)
	for i := 0; i < cfg.StrikeCount; i++ {
		strike := start + float64(i)*cfg.StrikeStep
		if strike <= 0 {
			return nil, fmt.Errorf("%w: strike %v is not positive", chain.ErrInvalidCatalog, strike)
		}
		distance := math.Abs(cfg.UnderlyingPrice - strike)
		rows = append(rows, models.StrikeRow{
			Strike: strike,
			Call:   newInstrument(models.Call, strike, referencePrice(distance, rnd)),
			Put:    newInstrument(models.Put, strike, referencePrice(distance, rnd)),
		})
	}

	ref := round2(cfg.UnderlyingPrice - referencePrice(100, rnd))
	underlying := models.Underlying{
		ReferencePrice: ref,
		Price:          cfg.UnderlyingPrice,
		PercentChange:  percentChange(cfg.UnderlyingPrice, ref),
	}
	return chain.New(cfg.Symbol, underlying, rows)
}

// Token names a contract, e.g. CALL_22500.
func Token(kind models.Kind, strike float64) string {
	return string(kind) + "_" + strconv.FormatFloat(strike, 'f', -1, 64)
}

func newInstrument(kind models.Kind, strike, ref float64) models.Instrument {
	return models.Instrument{
		Token:          Token(kind, strike),
		Strike:         strike,
		Type:           kind,
		ReferencePrice: ref,
		Price:          ref,
	}
}

// referencePrice decays with distance from the money, floored at 10, plus up to 50 of noise.
func referencePrice(distance float64, rnd Rand) float64 {
	base := math.Max(10, 500-distance/10)
	return round2(base + rnd.Float64()*50)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func percentChange(price, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return round2((price/ref - 1) * 100)
}
