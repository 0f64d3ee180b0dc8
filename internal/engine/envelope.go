package engine

import (
	"math"
	"sort"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// EnvelopeState classifies a weekly-load sequence against the safe envelope.
type EnvelopeState string

const (
	EnvelopeInside  EnvelopeState = "inside"
	EnvelopeEdge    EnvelopeState = "edge"
	EnvelopeOutside EnvelopeState = "outside"
)

// CapacityEnvelopeResult scores a full weekly-load sequence against the
// profile/history-aware safe envelope.
type CapacityEnvelopeResult struct {
	EnvelopeScore   float64       `json:"envelope_score"`
	EnvelopeState   EnvelopeState `json:"envelope_state"`
	LimitingFactors []string      `json:"limiting_factors,omitempty"`
}

// weekBounds are the safe-load bounds for one week slot.
type weekBounds struct {
	SafeLow      float64
	SafeHigh     float64
	RampLimitPct float64
}

func evidenceMultiplier(state goals.EvidenceState, calib calibration.Config) float64 {
	e := calib.Envelope
	switch state {
	case goals.EvidenceSparse:
		return e.EvidenceMultiplierSparse
	case goals.EvidenceStale:
		return e.EvidenceMultiplierStale
	case goals.EvidenceRich:
		return e.EvidenceMultiplierRich
	default:
		return e.EvidenceMultiplierNone
	}
}

// boundsForWeek derives the safe envelope for one week index. The trusted band
// widens progressively with the week index and with evidence richness.
func boundsForWeek(weekIdx int, startingCTL float64, mult float64, calib calibration.Config) weekBounds {
	e := calib.Envelope
	baseWeekly := math.Max(startingCTL*7, 1)
	growth := math.Min(1+e.GrowthPerWeek*float64(weekIdx), e.GrowthCap)
	mid := baseWeekly * growth
	halfWidth := mid * e.HalfWidthFraction * mult
	return weekBounds{
		SafeLow:      math.Max(0, mid-halfWidth),
		SafeHigh:     mid + halfWidth,
		RampLimitPct: e.RampLimitPct * mult,
	}
}

// ComputeCapacityEnvelope scores whether a projected weekly-load sequence
// stays within the safe envelope. Overshooting high is weighted heaviest,
// then over-ramping, then undershooting; later weeks count slightly more.
// Empty input is valid and scores as fully inside.
func ComputeCapacityEnvelope(weeks []float64, startingCTL float64, evidence goals.EvidenceState, calib calibration.Config) CapacityEnvelopeResult {
	e := calib.Envelope
	if len(weeks) == 0 {
		return CapacityEnvelopeResult{EnvelopeScore: 100, EnvelopeState: EnvelopeInside}
	}

	mult := evidenceMultiplier(evidence, calib)
	limiting := make(map[string]struct{})

	var weightedPenalty, totalWeight float64
	prev := math.Max(startingCTL*7, 1)
	for i, w := range weeks {
		bounds := boundsForWeek(i, startingCTL, mult, calib)

		overshoot := 0.0
		if bounds.SafeHigh > 0 {
			overshoot = math.Max(0, (w-bounds.SafeHigh)/bounds.SafeHigh)
		}
		undershoot := 0.0
		if bounds.SafeLow > 0 {
			undershoot = math.Max(0, (bounds.SafeLow-w)/bounds.SafeLow)
		}
		overRamp := math.Max(0, math.Abs(w-prev)/math.Max(prev, 1)-bounds.RampLimitPct)

		if overshoot > 0.01 {
			limiting["overshoot_high"] = struct{}{}
		}
		if undershoot > 0.01 {
			limiting["undershoot_low"] = struct{}{}
		}
		if overRamp > 0.01 {
			limiting["ramp_exceeded"] = struct{}{}
		}

		penalty := e.OvershootWeight*overshoot + e.UndershootWeight*undershoot + e.OverRampWeight*overRamp
		penalty = math.Min(penalty*100, 100)

		weight := 1.0
		if len(weeks) > 1 {
			weight = 1 + e.LateWeekEmphasis*float64(i)/float64(len(weeks)-1)
		}
		weightedPenalty += penalty * weight
		totalWeight += weight
		prev = math.Max(w, 1)
	}

	score := round2(clampFloat(100-weightedPenalty/totalWeight, 0, 100))
	state := EnvelopeOutside
	switch {
	case score >= e.InsideThreshold:
		state = EnvelopeInside
	case score >= e.EdgeThreshold:
		state = EnvelopeEdge
	}

	factors := make([]string, 0, len(limiting))
	for f := range limiting {
		factors = append(factors, f)
	}
	sort.Strings(factors)

	return CapacityEnvelopeResult{
		EnvelopeScore:   score,
		EnvelopeState:   state,
		LimitingFactors: factors,
	}
}

// ComputeDurabilityScore penalizes high monotony (mean/stddev of weekly
// loads), high strain (mean x monotony), and deload debt (too many
// consecutive weeks without a real reduction).
func ComputeDurabilityScore(weeks []float64, calib calibration.Config) float64 {
	if len(weeks) == 0 {
		return 100
	}
	c := calib.Composite

	mean := meanOf(weeks)
	sd := stddevOf(weeks, mean)
	monotony := 10.0
	if sd > 0 {
		monotony = math.Min(mean/sd, 10)
	}
	strain := mean * monotony

	monotonyPenalty := math.Max(0, monotony-c.MonotonyThreshold) * c.MonotonyPenaltyScale
	strainPenalty := math.Max(0, strain-c.StrainThreshold) * c.StrainPenaltyScale

	// Deload debt: consecutive weeks without a reduction below the drop
	// fraction of the previous week.
	debtPenalty := 0.0
	run := 0
	for i := 1; i < len(weeks); i++ {
		if weeks[i] < weeks[i-1]*c.DeloadDropFraction {
			run = 0
			continue
		}
		run++
		if run > c.DeloadDebtWeeks {
			debtPenalty += c.DeloadDebtPenalty
		}
	}

	return round2(clampFloat(100-monotonyPenalty-strainPenalty-debtPenalty, 0, 100))
}

// CompositeReadiness is the plan-level aggregate readiness.
type CompositeReadiness struct {
	TargetAttainmentScore float64       `json:"target_attainment_score"`
	EnvelopeScore         float64       `json:"envelope_score"`
	DurabilityScore       float64       `json:"durability_score"`
	EvidenceScore         float64       `json:"evidence_score"`
	EnvelopeState         EnvelopeState `json:"envelope_state"`
	ReadinessScore        float64       `json:"readiness_score"`
	ReadinessConfidence   float64       `json:"readiness_confidence"`
	RationaleCodes        []string      `json:"readiness_rationale_codes,omitempty"`
}

// ComputeCompositeReadiness blends target attainment, envelope safety,
// durability, and evidence richness into one plan readiness score, with a
// confidence capped by how much history backs the plan.
func ComputeCompositeReadiness(attainment float64, envelope CapacityEnvelopeResult, durability float64, evidence goals.EvidenceState, calib calibration.Config) CompositeReadiness {
	c := calib.Composite

	attainment = clampFloat(attainment, 0, 100)
	durability = clampFloat(durability, 0, 100)

	evidenceScore := c.EvidenceScoreNone
	confidenceCap := c.ConfidenceCapNone
	switch evidence {
	case goals.EvidenceSparse:
		evidenceScore, confidenceCap = c.EvidenceScoreSparse, c.ConfidenceCapSparse
	case goals.EvidenceStale:
		evidenceScore, confidenceCap = c.EvidenceScoreStale, c.ConfidenceCapStale
	case goals.EvidenceRich:
		evidenceScore, confidenceCap = c.EvidenceScoreRich, c.ConfidenceCapRich
	}

	score := c.AttainmentWeight*attainment +
		c.EnvelopeWeight*envelope.EnvelopeScore +
		c.DurabilityWeight*durability +
		c.EvidenceWeight*evidenceScore

	confidence := math.Min(score, confidenceCap)

	var codes []string
	if attainment >= 80 {
		codes = append(codes, "attainment_strong")
	} else if attainment < 55 {
		codes = append(codes, "attainment_weak")
	}
	switch envelope.EnvelopeState {
	case EnvelopeEdge:
		codes = append(codes, "envelope_edge")
	case EnvelopeOutside:
		codes = append(codes, "envelope_outside")
	}
	if durability < 60 {
		codes = append(codes, "durability_low")
	}
	if evidence == goals.EvidenceNone || evidence == goals.EvidenceSparse {
		codes = append(codes, "evidence_limited")
	}

	return CompositeReadiness{
		TargetAttainmentScore: round2(attainment),
		EnvelopeScore:         envelope.EnvelopeScore,
		DurabilityScore:       durability,
		EvidenceScore:         evidenceScore,
		EnvelopeState:         envelope.EnvelopeState,
		ReadinessScore:        round2(clampFloat(score, 0, 100)),
		ReadinessConfidence:   round2(clampFloat(confidence, 0, 100)),
		RationaleCodes:        codes,
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddevOf(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
