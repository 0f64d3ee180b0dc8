package engine

import (
	"math"
	"sort"

	"peakform/internal/calibration"
)

// DemandTier buckets a goal's performance demand.
type DemandTier string

const (
	DemandLow    DemandTier = "low"
	DemandMedium DemandTier = "medium"
	DemandHigh   DemandTier = "high"
)

// FitnessLevel is the inferred starting fitness class for no-history users.
type FitnessLevel string

const (
	FitnessWeak   FitnessLevel = "weak"
	FitnessStrong FitnessLevel = "strong"
)

// Confidence grades how much to trust an anchor resolution.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// TimelineFeasibility classifies whether the weeks until the event allow a
// full build for the demand tier.
type TimelineFeasibility string

const (
	TimelineFull         TimelineFeasibility = "full"
	TimelineLimited      TimelineFeasibility = "limited"
	TimelineInsufficient TimelineFeasibility = "insufficient"
)

// FitnessSignal is one independent piece of corroborating evidence that a
// no-history user starts from a strong base.
type FitnessSignal string

const (
	SignalPriorRacing      FitnessSignal = "prior_racing_history"
	SignalConsistentWeeks  FitnessSignal = "consistent_recent_weeks"
	SignalCoachAssessment  FitnessSignal = "coach_assessment"
	SignalCrossSportBase   FitnessSignal = "cross_sport_base"
)

// IntensityAssumption models how hard declared training hours count.
type IntensityAssumption struct {
	TSSPerHour float64
}

// AnchorContext is everything the no-history resolver may consult.
// Optional fields are pointers; absence takes a deterministic fallback branch.
type AnchorContext struct {
	DemandTier              DemandTier
	Signals                 []FitnessSignal
	WeeklyAvailabilityHours *float64
	IntensityModel          *IntensityAssumption
	WeeksUntilEvent         int
}

// AnchorResult is a defensible starting prior for a user with no history.
type AnchorResult struct {
	StartCTL       float64             `json:"start_ctl"`
	StartATL       float64             `json:"start_atl"`
	StartWeeklyTSS int                 `json:"start_weekly_tss"`
	FitnessLevel   FitnessLevel        `json:"fitness_level"`
	Confidence     Confidence          `json:"confidence"`
	Feasibility    TimelineFeasibility `json:"timeline_feasibility"`
	Reasons        []string            `json:"reasons"`

	FloorClampedByAvailability bool `json:"floor_clamped_by_availability"`
}

// ResolveNoHistoryAnchor fuses indirect evidence into a starting CTL/ATL
// prior. The ladder is order-sensitive: fitness inference, floor lookup,
// availability clamp, timeline feasibility. Absent inputs degrade to the most
// conservative branch; the function never fails.
func ResolveNoHistoryAnchor(ctx AnchorContext, calib calibration.Config) AnchorResult {
	var reasons []string

	// 1. Fitness defaults to weak; promotes on enough distinct signals.
	level := FitnessWeak
	if countDistinctSignals(ctx.Signals) >= calib.Anchor.StrongSignalCount {
		level = FitnessStrong
		reasons = append(reasons, "fitness_promoted_strong")
	} else {
		reasons = append(reasons, "fitness_default_weak")
	}

	tier := normalizeDemandTier(ctx.DemandTier)

	// 2. Canonical CTL floor from the fitness x tier table.
	floor := anchorFloor(level, tier, calib)

	// 3. Clamp against what declared availability can actually sustain.
	clamped := false
	if ctx.WeeklyAvailabilityHours == nil {
		reasons = append(reasons, "availability_unknown")
	} else {
		tssPerHour := calib.Anchor.FallbackTSSPerHour
		if ctx.IntensityModel != nil && ctx.IntensityModel.TSSPerHour > 0 {
			tssPerHour = ctx.IntensityModel.TSSPerHour
		} else {
			// 4. Missing intensity model: fixed conservative baseline.
			reasons = append(reasons, "intensity_model_fallback")
		}
		feasibleWeeklyTSS := math.Max(0, *ctx.WeeklyAvailabilityHours) * tssPerHour
		ceilingCTL := feasibleWeeklyTSS / 7
		if floor > ceilingCTL {
			floor = ceilingCTL
			clamped = true
			reasons = append(reasons, "floor_clamped_by_availability")
		}
	}

	// 5. Timeline feasibility is metadata only, mapped straight to confidence.
	feasibility := timelineFeasibility(tier, ctx.WeeksUntilEvent, calib)
	confidence := ConfidenceLow
	switch feasibility {
	case TimelineFull:
		confidence = ConfidenceHigh
		reasons = append(reasons, "timeline_full")
	case TimelineLimited:
		confidence = ConfidenceMedium
		reasons = append(reasons, "timeline_limited")
	default:
		reasons = append(reasons, "timeline_insufficient")
	}

	floor = round3(floor)
	return AnchorResult{
		StartCTL: floor,
		// No-history users start fresh: ATL matches CTL, neutral form.
		StartATL: floor,
		// Single source of truth: weekly TSS is always derived from the CTL.
		StartWeeklyTSS:             int(math.Round(7 * floor)),
		FitnessLevel:               level,
		Confidence:                 confidence,
		Feasibility:                feasibility,
		Reasons:                    reasons,
		FloorClampedByAvailability: clamped,
	}
}

func countDistinctSignals(signals []FitnessSignal) int {
	seen := make(map[FitnessSignal]struct{}, len(signals))
	for _, s := range signals {
		if s == "" {
			continue
		}
		seen[s] = struct{}{}
	}
	return len(seen)
}

// DistinctSignals returns the deduplicated, sorted signal set, for reporting.
func DistinctSignals(signals []FitnessSignal) []FitnessSignal {
	seen := make(map[FitnessSignal]struct{}, len(signals))
	var out []FitnessSignal
	for _, s := range signals {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func normalizeDemandTier(tier DemandTier) DemandTier {
	switch tier {
	case DemandLow, DemandHigh:
		return tier
	default:
		return DemandMedium
	}
}

func anchorFloor(level FitnessLevel, tier DemandTier, calib calibration.Config) float64 {
	a := calib.Anchor
	if level == FitnessStrong {
		switch tier {
		case DemandLow:
			return a.FloorStrongLow
		case DemandHigh:
			return a.FloorStrongHigh
		default:
			return a.FloorStrongMedium
		}
	}
	switch tier {
	case DemandLow:
		return a.FloorWeakLow
	case DemandHigh:
		return a.FloorWeakHigh
	default:
		return a.FloorWeakMedium
	}
}

func timelineFeasibility(tier DemandTier, weeks int, calib calibration.Config) TimelineFeasibility {
	a := calib.Anchor
	fullWeeks, limitedWeeks := a.FullWeeksMedium, a.LimitedWeeksMedium
	switch tier {
	case DemandLow:
		fullWeeks, limitedWeeks = a.FullWeeksLow, a.LimitedWeeksLow
	case DemandHigh:
		fullWeeks, limitedWeeks = a.FullWeeksHigh, a.LimitedWeeksHigh
	}
	switch {
	case weeks >= fullWeeks:
		return TimelineFull
	case weeks >= limitedWeeks:
		return TimelineLimited
	default:
		return TimelineInsufficient
	}
}

// DemandTierForDuration buckets an event duration into a demand tier.
// Used by callers that derive the tier from the primary goal's target.
func DemandTierForDuration(durationS float64) DemandTier {
	hours := durationS / 3600
	switch {
	case hours <= 0:
		return DemandLow
	case hours < 1:
		return DemandLow
	case hours < 3:
		return DemandMedium
	default:
		return DemandHigh
	}
}
