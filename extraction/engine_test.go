package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"expensebot/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	out  string
	err  error
	last service.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req service.ChatRequest) (string, error) {
	f.last = req
	return f.out, f.err
}

var testCategories = []string{"Groceries", "Transport", "Restaurant", "Household", "Entertainment", "Health"}

func newTestEngine(c service.Completer) *Engine {
	e := NewEngine(c, "MDL", 0.2, zerolog.Nop())
	e.SetClock(func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) })
	return e
}

func TestEngine_AIPath(t *testing.T) {
	c := &fakeCompleter{out: "```json\n{\"data\":{\"amount\":480,\"currency\":\"mdl\",\"vendor\":\"Linella\",\"purchase_date\":\"2025-03-13\",\"category\":\"groceries\",\"items\":[{\"name\":\"Lapte\",\"qty\":2,\"price\":\"12,50\"}]}}\n```"}
	e := newTestEngine(c)

	res := e.Extract(context.Background(), "Am plătit 480 MDL la Linella ieri", testCategories)
	assert.Equal(t, ProvenanceAI, res.Provenance)
	assert.Empty(t, res.FallbackReason)
	require.NotNil(t, res.Candidate.Amount)
	assert.True(t, res.Candidate.Amount.Equal(decimal.NewFromInt(480)))
	assert.Equal(t, "MDL", res.Candidate.Currency)
	assert.Equal(t, "Linella", res.Candidate.Vendor)
	assert.Equal(t, "2025-03-13", res.Candidate.PurchaseDate)
	assert.Equal(t, "Groceries", res.Candidate.Category)
	require.NotNil(t, res.Candidate.Confidence)
	assert.InDelta(t, AIConfidence, *res.Candidate.Confidence, 1e-9)
	require.Len(t, res.Candidate.Items, 1)
	assert.Equal(t, "25.00", res.Candidate.Items[0].Total.StringFixed(2))

	assert.True(t, c.last.JSON)
	assert.Contains(t, c.last.System, "Groceries, Transport")
	assert.Contains(t, c.last.System, "2025-03-14")
	assert.Equal(t, "Am plătit 480 MDL la Linella ieri", c.last.Prompt)
}

func TestEngine_AIFlatObjectAndDefaults(t *testing.T) {
	c := &fakeCompleter{out: `{"amount":"35","vendor":"Cafea","purchase_date":"ieri","confidence":0.55}`}
	res := newTestEngine(c).Extract(context.Background(), "cafea 35", testCategories)

	assert.Equal(t, ProvenanceAI, res.Provenance)
	assert.Equal(t, "MDL", res.Candidate.Currency)
	assert.Equal(t, "2025-03-14", res.Candidate.PurchaseDate)
	assert.Equal(t, "cafea 35", res.Candidate.Notes)
	assert.Equal(t, "Restaurant", res.Candidate.Category)
	assert.InDelta(t, 0.55, *res.Candidate.Confidence, 1e-9)
}

func TestEngine_FallbackOnFailure(t *testing.T) {
	in := "Am plătit 480 MDL la Linella ieri"
	cases := map[string]*fakeCompleter{
		"transport error": {err: errors.New("dial tcp: timeout")},
		"invalid json":    {out: "nu știu"},
		"missing amount":  {out: `{"vendor":"Linella"}`},
		"verb as vendor":  {out: `{"amount":480,"vendor":"Am"}`},
		"empty vendor":    {out: `{"amount":480,"vendor":"  "}`},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			res := newTestEngine(c).Extract(context.Background(), in, testCategories)
			assert.Equal(t, ProvenanceHeuristic, res.Provenance)
			assert.NotEmpty(t, res.FallbackReason)
			assert.Equal(t, "Linella", res.Candidate.Vendor)
			require.NotNil(t, res.Candidate.Amount)
			assert.True(t, res.Candidate.Amount.Equal(decimal.NewFromInt(480)))
			assert.Equal(t, "MDL", res.Candidate.Currency)
			assert.Equal(t, "Groceries", res.Candidate.Category)
		})
	}
}

func TestEngine_NoCompleter(t *testing.T) {
	res := newTestEngine(nil).Extract(context.Background(), "Taxi 30 lei", testCategories)
	assert.Equal(t, ProvenanceHeuristic, res.Provenance)
	assert.Equal(t, "Taxi", res.Candidate.Vendor)
	assert.Equal(t, "Transport", res.Candidate.Category)
	assert.Nil(t, res.Candidate.Confidence)
}

func TestEngine_HeuristicDeterministic(t *testing.T) {
	e := newTestEngine(nil)
	a := e.Extract(context.Background(), "Am cumpărat pâine 15 lei", testCategories)
	b := e.Extract(context.Background(), "Am cumpărat pâine 15 lei", testCategories)
	assert.Equal(t, a, b)
}

func TestNormalizeItem(t *testing.T) {
	two := decimal.NewFromInt(2)
	ten := decimal.NewFromInt(10)

	it, ok := normalizeItem(aiItem{Name: "Apă", Quantity: flexibleDecimal{&two}, Total: flexibleDecimal{&ten}})
	require.True(t, ok)
	assert.Equal(t, "5.00", it.UnitPrice.StringFixed(2))

	it, ok = normalizeItem(aiItem{Name: "Pâine", Price: flexibleDecimal{&ten}})
	require.True(t, ok)
	assert.True(t, it.Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, it.Total.Equal(ten))

	_, ok = normalizeItem(aiItem{Name: "Gol"})
	assert.False(t, ok)
	_, ok = normalizeItem(aiItem{Price: flexibleDecimal{&ten}})
	assert.False(t, ok)
}

func TestCleanModelJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanModelJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanModelJSON(`Iată: {"a":1} gata`))
}
