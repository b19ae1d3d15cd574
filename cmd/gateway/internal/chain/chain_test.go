package chain_test

import (
	"errors"
	"testing"

	"github.com/shubham-shewale/option-chain-feed/cmd/gateway/internal/chain"
	"github.com/shubham-shewale/option-chain-feed/pkg/models"
)

func row(strike float64, call, put string) models.StrikeRow {
	return models.StrikeRow{
		Strike: strike,
		Call:   models.Instrument{Token: call, Strike: strike, Type: models.Call, ReferencePrice: 100, Price: 100},
		Put:    models.Instrument{Token: put, Strike: strike, Type: models.Put, ReferencePrice: 90, Price: 90},
	}
}

var underlying = models.Underlying{ReferencePrice: 17400, Price: 17500}

func TestNew_SortsRowsAndIndexesTokens(t *testing.T) {
	c, err := chain.New("NIFTY", underlying, []models.StrikeRow{
		row(17600, "CE_17600", "PE_17600"),
		row(17500, "CE_17500", "PE_17500"),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"CE_17500", "PE_17500", "CE_17600", "PE_17600"}
	got := c.InstrumentTokens()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("InstrumentTokens = %v, want %v", got, want)
		}
	}
	if c.Underlying().Token != models.UnderlyingToken {
		t.Errorf("Underlying token should be forced to %s", models.UnderlyingToken)
	}
	if len(c.Tokens()) != 5 {
		t.Errorf("Expected 5 tokens with the underlying, got %v", c.Tokens())
	}
}

func TestNew_RejectsInvalidCatalogs(t *testing.T) {
	cases := map[string][]models.StrikeRow{
		"duplicate strike": {row(100, "A", "B"), row(100, "C", "D")},
		"duplicate token":  {row(100, "A", "B"), row(200, "A", "D")},
		"reserved token":   {row(100, models.UnderlyingToken, "B")},
		"empty token":      {row(100, "", "B")},
		"swapped kinds": {{
			Strike: 100,
			Call:   models.Instrument{Token: "A", Strike: 100, Type: models.Put},
			Put:    models.Instrument{Token: "B", Strike: 100, Type: models.Call},
		}},
		"strike mismatch": {{
			Strike: 100,
			Call:   models.Instrument{Token: "A", Strike: 200, Type: models.Call},
			Put:    models.Instrument{Token: "B", Strike: 100, Type: models.Put},
		}},
	}
	for name, rows := range cases {
		if _, err := chain.New("X", underlying, rows); !errors.Is(err, chain.ErrInvalidCatalog) {
			t.Errorf("%s: expected ErrInvalidCatalog, got %v", name, err)
		}
	}

	if _, err := chain.New("X", models.Underlying{}, nil); !errors.Is(err, chain.ErrInvalidCatalog) {
		t.Errorf("zero underlying should be rejected, got %v", err)
	}
}

func TestApply_UpdatesInPlaceAndReportsUnknown(t *testing.T) {
	c, err := chain.New("NIFTY", underlying, []models.StrikeRow{row(17500, "CE_17500", "PE_17500")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	unknown := c.Apply(models.TickDiff{
		"CE_17500":             {Price: 105, PercentChange: 5},
		models.UnderlyingToken: {Price: 17600, PercentChange: 1.15},
		"CE_99999":             {Price: 1},
	})

	if len(unknown) != 1 || unknown[0] != "CE_99999" {
		t.Errorf("Expected CE_99999 reported, got %v", unknown)
	}
	q, _ := c.Quote("CE_17500")
	if q.Price != 105 || q.PercentChange != 5 {
		t.Errorf("Quote not applied: %+v", q)
	}
	inst, _ := c.Instrument("CE_17500")
	if inst.ReferencePrice != 100 {
		t.Errorf("Reference price must not change, got %v", inst.ReferencePrice)
	}
	snap := c.Snapshot()
	if snap.UnderlyingPrice != 17600 || snap.Underlying.Price != 17600 {
		t.Errorf("Underlying not applied: %+v", snap.Underlying)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	c, err := chain.New("NIFTY", underlying, []models.StrikeRow{row(17500, "CE_17500", "PE_17500")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	snap := c.Snapshot()
	snap.Strikes[0].Call.Price = 1

	if q, _ := c.Quote("CE_17500"); q.Price != 100 {
		t.Errorf("Mutating a snapshot leaked into the chain")
	}
}

func TestQuotes_SkipsUnknownTokens(t *testing.T) {
	c, err := chain.New("NIFTY", underlying, []models.StrikeRow{row(17500, "CE_17500", "PE_17500")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := c.Quotes([]string{"PE_17500", "NOPE", models.UnderlyingToken})
	if len(got) != 2 {
		t.Errorf("Expected 2 quotes, got %v", got)
	}
}
