package decision

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aitrader/pkg/types"
)

func TestExtractJSON_CodeFence(t *testing.T) {
	raw := "Here is my decision:\n```json\n{\"action\": \"buy\", \"confidence\": 0.8}\n```\nGood luck."

	data, err := ExtractJSON(raw)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "buy", out["action"])
}

func TestExtractJSON_TrailingCommasAndPythonLiterals(t *testing.T) {
	raw := `{"action": "hold", "stop_loss": None, "forced": False, "levels": [1.0, 2.0,], "confidence": 0.5,}`

	data, err := ExtractJSON(raw)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Nil(t, out["stop_loss"])
	assert.Equal(t, false, out["forced"])
}

func TestExtractJSON_BalancedBraceScan(t *testing.T) {
	raw := `The model says {"action": "sell", "rationale": "price {above} resistance"} and that is all.`

	data, err := ExtractJSON(raw)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, "sell", out["action"])
	assert.Equal(t, "price {above} resistance", out["rationale"])
}

func TestExtractJSON_NoObject(t *testing.T) {
	_, err := ExtractJSON("I cannot decide right now.")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestSanitize_RejectsHardViolations(t *testing.T) {
	rec := types.DecisionRecord{Action: "yolo", Confidence: 0.5}
	assert.Error(t, Sanitize(&rec))

	rec = types.DecisionRecord{Action: types.ActionBuy, Confidence: 1.2}
	assert.Error(t, Sanitize(&rec))
}

func TestSanitize_NormalizesSoftFields(t *testing.T) {
	rec := types.DecisionRecord{
		Action:            types.ActionBuy,
		Confidence:        0.7,
		TargetSizePct:     1.5,
		TradeabilityScore: -0.2,
		Regime:            "BANANAS",
		StopLoss:          -10,
		PriceStyle:        "weird",
		TrailingType:      "weird",
		TakeProfit:        &types.ScaleOutPlan{LevelsR: []float64{1, 2}, Pcts: []float64{0.5}},
	}
	require.NoError(t, Sanitize(&rec))
	assert.Equal(t, 1.0, rec.TargetSizePct)
	assert.Equal(t, 0.0, rec.TradeabilityScore)
	assert.Equal(t, types.RegimeSideways, rec.Regime)
	assert.Equal(t, 0.0, rec.StopLoss)
	assert.Equal(t, types.PriceStyle(""), rec.PriceStyle)
	assert.Equal(t, types.TrailingNone, rec.TrailingType)
	assert.Nil(t, rec.TakeProfit, "mismatched scale-out plan must be dropped")
}

func TestKeyPool_RoundRobin(t *testing.T) {
	pool := NewKeyPool([]string{"a", "", "b", "c"})
	require.Equal(t, 3, pool.Size())

	assert.Equal(t, "a", pool.Next())
	assert.Equal(t, "b", pool.Next())
	assert.Equal(t, "c", pool.Next())
	assert.Equal(t, "a", pool.Next())
}

func TestKeyPool_Empty(t *testing.T) {
	pool := NewKeyPool(nil)
	assert.Equal(t, "", pool.Next())
}

func newTestOrchestrator() *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		MinAggregatedBars: 10,
		RequestTimeout:    time.Minute,
		Regimes: map[types.Regime]RegimeParams{
			types.RegimeTrendUp:   {Interval: 3 * time.Minute, Cooldown: 2 * time.Minute},
			types.RegimeTrendDown: {Interval: 3 * time.Minute, Cooldown: 2 * time.Minute},
			types.RegimeSideways:  {Interval: 5 * time.Minute, Cooldown: 5 * time.Minute},
		},
	})
}

func TestOrchestrator_GatesOnReadiness(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, ok := o.MaybeRequestDecision("AU2512", now, false, 50)
	assert.False(t, ok, "no request without an indicator snapshot")

	_, ok = o.MaybeRequestDecision("AU2512", now, true, 5)
	assert.False(t, ok, "no request below minimum aggregated bars")

	seq, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
}

func TestOrchestrator_InflightBlocksUntilTimeout(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	_, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)

	// Next interval has passed but the request is still in flight.
	_, ok = o.MaybeRequestDecision("AU2512", now.Add(4*time.Minute), true, 50)
	assert.False(t, ok)

	// Past the request timeout the orchestrator abandons it.
	seq, ok := o.MaybeRequestDecision("AU2512", now.Add(6*time.Minute), true, 50)
	require.True(t, ok)
	assert.Equal(t, uint64(2), seq)
}

func TestOrchestrator_Supersession(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	seq1, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)
	seq2, ok := o.MaybeRequestDecision("AU2512", now.Add(2*time.Minute), true, 50)
	assert.False(t, ok, "in-flight request must block")
	_ = seq2

	// Timeout path issues a second request.
	seq2, ok = o.MaybeRequestDecision("AU2512", now.Add(6*time.Minute), true, 50)
	require.True(t, ok)

	// The stale first response arrives after the newer request.
	_, accepted := o.AcceptResponse("AU2512", seq1, types.DecisionRecord{Action: types.ActionBuy, Confidence: 0.9}, nil, now.Add(7*time.Minute))
	assert.False(t, accepted, "superseded response must be discarded")

	rec, accepted := o.AcceptResponse("AU2512", seq2, types.DecisionRecord{Action: types.ActionBuy, Confidence: 0.9, Regime: types.RegimeTrendUp}, nil, now.Add(7*time.Minute))
	require.True(t, accepted)
	assert.Equal(t, types.ActionBuy, rec.Action)
	assert.Equal(t, seq2, rec.Seq)
}

func TestOrchestrator_ErrorDegradesToHold(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	seq, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)

	rec, accepted := o.AcceptResponse("AU2512", seq, types.DecisionRecord{}, errors.New("timeout"), now.Add(time.Minute))
	require.True(t, accepted)
	assert.Equal(t, types.ActionHold, rec.Action)
}

func TestOrchestrator_MalformedDegradesToHold(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	seq, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)

	rec, accepted := o.AcceptResponse("AU2512", seq, types.DecisionRecord{Action: "explode", Confidence: 7}, nil, now.Add(time.Minute))
	require.True(t, accepted)
	assert.Equal(t, types.ActionHold, rec.Action)
}

func TestOrchestrator_BumpSeqDiscardsInflight(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	seq, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)

	// A forced flatten bumps the sequence before the response lands.
	o.BumpSeq("AU2512")

	_, accepted := o.AcceptResponse("AU2512", seq, types.DecisionRecord{Action: types.ActionBuy, Confidence: 0.9}, nil, now.Add(time.Minute))
	assert.False(t, accepted)
}

func TestOrchestrator_SidewaysSlowsCadence(t *testing.T) {
	o := newTestOrchestrator()
	now := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	seq, ok := o.MaybeRequestDecision("AU2512", now, true, 50)
	require.True(t, ok)
	_, accepted := o.AcceptResponse("AU2512", seq, types.DecisionRecord{Action: types.ActionHold, Confidence: 0.5, Regime: types.RegimeSideways}, nil, now)
	require.True(t, accepted)

	// Trend cooldown would allow at +3m; sideways pushes to +5m.
	_, ok = o.MaybeRequestDecision("AU2512", now.Add(4*time.Minute), true, 50)
	assert.False(t, ok)
	_, ok = o.MaybeRequestDecision("AU2512", now.Add(5*time.Minute), true, 50)
	assert.True(t, ok)
}
