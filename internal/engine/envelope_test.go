package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// midlineWeeks builds a load sequence tracking the envelope midline exactly.
func midlineWeeks(n int, startCTL float64, calib calibration.Config) []float64 {
	e := calib.Envelope
	base := startCTL * 7
	out := make([]float64, n)
	for i := range out {
		out[i] = base * math.Min(1+e.GrowthPerWeek*float64(i), e.GrowthCap)
	}
	return out
}

func TestCapacityEnvelopeEmptyInputIsInside(t *testing.T) {
	calib := calibration.Default()
	result := ComputeCapacityEnvelope(nil, 40, goals.EvidenceNone, calib)

	assert.Equal(t, 100.0, result.EnvelopeScore)
	assert.Equal(t, EnvelopeInside, result.EnvelopeState)
	assert.Empty(t, result.LimitingFactors)
}

func TestCapacityEnvelopeMidlineScoresClean(t *testing.T) {
	calib := calibration.Default()
	weeks := midlineWeeks(12, 40, calib)

	result := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceRich, calib)

	assert.Equal(t, 100.0, result.EnvelopeScore)
	assert.Equal(t, EnvelopeInside, result.EnvelopeState)
	assert.Empty(t, result.LimitingFactors)
}

func TestCapacityEnvelopeFlagsOvershoot(t *testing.T) {
	calib := calibration.Default()
	weeks := midlineWeeks(8, 40, calib)
	// Double the back half of the plan, far past the safe band.
	for i := 4; i < len(weeks); i++ {
		weeks[i] *= 2
	}

	result := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceRich, calib)

	assert.Contains(t, result.LimitingFactors, "overshoot_high")
	assert.Less(t, result.EnvelopeScore, 100.0)
}

func TestCapacityEnvelopeFlagsUndershoot(t *testing.T) {
	calib := calibration.Default()
	weeks := make([]float64, 8)
	for i := range weeks {
		weeks[i] = 40 // far below a 280-per-week baseline
	}

	result := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceRich, calib)

	assert.Contains(t, result.LimitingFactors, "undershoot_low")
	assert.NotEqual(t, EnvelopeInside, result.EnvelopeState)
}

func TestCapacityEnvelopeFlagsExcessiveRamp(t *testing.T) {
	calib := calibration.Default()
	// Inside the band each week but whipsawing far beyond the ramp limit.
	weeks := []float64{280, 180, 300, 190, 310, 200}

	result := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceRich, calib)

	assert.Contains(t, result.LimitingFactors, "ramp_exceeded")
}

func TestCapacityEnvelopeRicherEvidenceWidensBand(t *testing.T) {
	calib := calibration.Default()
	weeks := midlineWeeks(8, 40, calib)
	// Push every week 30% above the midline, near the band edge.
	for i := range weeks {
		weeks[i] *= 1.30
	}

	rich := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceRich, calib)
	none := ComputeCapacityEnvelope(weeks, 40, goals.EvidenceNone, calib)

	assert.GreaterOrEqual(t, rich.EnvelopeScore, none.EnvelopeScore,
		"rich history should tolerate the same loads at least as well as no history")
}

func TestDurabilityScoreEmptyInput(t *testing.T) {
	calib := calibration.Default()
	assert.Equal(t, 100.0, ComputeDurabilityScore(nil, calib))
}

func TestDurabilityPenalizesMonotony(t *testing.T) {
	calib := calibration.Default()

	flat := []float64{300, 300, 300, 300, 300, 300, 300, 300}
	undulating := []float64{200, 350, 250, 380, 180, 360, 220, 340}

	flatScore := ComputeDurabilityScore(flat, calib)
	undulatingScore := ComputeDurabilityScore(undulating, calib)

	assert.Less(t, flatScore, undulatingScore,
		"identical weeks forever should score worse than a plan with real variation")
}

func TestDurabilityPenalizesDeloadDebt(t *testing.T) {
	calib := calibration.Default()

	// Gentle undulation but never a real deload drop.
	noDeload := []float64{280, 285, 290, 295, 300, 305, 310, 315, 320, 325, 330, 335}
	// Same trajectory with a deload every fourth week.
	withDeload := []float64{280, 290, 300, 240, 290, 300, 310, 250, 300, 310, 320, 260}

	assert.Less(t, ComputeDurabilityScore(noDeload, calib), ComputeDurabilityScore(withDeload, calib))
}

func TestCompositeReadinessBlend(t *testing.T) {
	calib := calibration.Default()
	c := calib.Composite
	envelope := CapacityEnvelopeResult{EnvelopeScore: 90, EnvelopeState: EnvelopeInside}

	result := ComputeCompositeReadiness(80, envelope, 70, goals.EvidenceRich, calib)

	want := c.AttainmentWeight*80 + c.EnvelopeWeight*90 + c.DurabilityWeight*70 + c.EvidenceWeight*c.EvidenceScoreRich
	assert.InDelta(t, want, result.ReadinessScore, 0.01)
	assert.Equal(t, result.ReadinessScore, result.ReadinessConfidence,
		"below the rich confidence cap, confidence tracks the score")
	assert.Contains(t, result.RationaleCodes, "attainment_strong")
	assert.NotContains(t, result.RationaleCodes, "evidence_limited")
}

func TestCompositeReadinessConfidenceCaps(t *testing.T) {
	calib := calibration.Default()
	envelope := CapacityEnvelopeResult{EnvelopeScore: 95, EnvelopeState: EnvelopeInside}

	none := ComputeCompositeReadiness(90, envelope, 90, goals.EvidenceNone, calib)
	require.Greater(t, none.ReadinessScore, calib.Composite.ConfidenceCapNone,
		"test setup must push the score above the cap")
	assert.Equal(t, calib.Composite.ConfidenceCapNone, none.ReadinessConfidence)
	assert.Contains(t, none.RationaleCodes, "evidence_limited")

	sparse := ComputeCompositeReadiness(90, envelope, 90, goals.EvidenceSparse, calib)
	stale := ComputeCompositeReadiness(90, envelope, 90, goals.EvidenceStale, calib)
	assert.Greater(t, sparse.ReadinessConfidence, stale.ReadinessConfidence,
		"sparse-but-current history outranks stale history")
}

func TestCompositeReadinessRationaleCodes(t *testing.T) {
	calib := calibration.Default()
	envelope := CapacityEnvelopeResult{EnvelopeScore: 40, EnvelopeState: EnvelopeOutside}

	result := ComputeCompositeReadiness(45, envelope, 50, goals.EvidenceSparse, calib)

	assert.Contains(t, result.RationaleCodes, "attainment_weak")
	assert.Contains(t, result.RationaleCodes, "envelope_outside")
	assert.Contains(t, result.RationaleCodes, "durability_low")
	assert.Contains(t, result.RationaleCodes, "evidence_limited")
}

func TestCompositeReadinessClampsInputs(t *testing.T) {
	calib := calibration.Default()
	envelope := CapacityEnvelopeResult{EnvelopeScore: 100, EnvelopeState: EnvelopeInside}

	result := ComputeCompositeReadiness(250, envelope, -40, goals.EvidenceRich, calib)

	assert.Equal(t, 100.0, result.TargetAttainmentScore)
	assert.Equal(t, 0.0, result.DurabilityScore)
	assert.LessOrEqual(t, result.ReadinessScore, 100.0)
	assert.GreaterOrEqual(t, result.ReadinessScore, 0.0)
}
