package engine

import (
	"math"
	"testing"

	"peakform/internal/calibration"
)

func float64Ptr(v float64) *float64 {
	return &v
}

func TestAnchorWeeklyTSSDerivedFromCTL(t *testing.T) {
	calib := calibration.Default()

	contexts := []AnchorContext{
		{DemandTier: DemandLow, WeeksUntilEvent: 4},
		{DemandTier: DemandMedium, WeeksUntilEvent: 12},
		{DemandTier: DemandHigh, WeeksUntilEvent: 20, Signals: []FitnessSignal{SignalPriorRacing, SignalCoachAssessment}},
		{DemandTier: DemandHigh, WeeklyAvailabilityHours: float64Ptr(2), WeeksUntilEvent: 20},
	}
	for i, ctx := range contexts {
		result := ResolveNoHistoryAnchor(ctx, calib)
		want := int(math.Round(7 * result.StartCTL))
		if result.StartWeeklyTSS != want {
			t.Fatalf("context %d: start_weekly_tss %d != round(7*start_ctl) %d", i, result.StartWeeklyTSS, want)
		}
		if result.StartATL != result.StartCTL {
			t.Fatalf("context %d: no-history prior should start at neutral form", i)
		}
	}
}

func TestAnchorFitnessPromotionNeedsTwoDistinctSignals(t *testing.T) {
	calib := calibration.Default()

	one := ResolveNoHistoryAnchor(AnchorContext{DemandTier: DemandMedium, Signals: []FitnessSignal{SignalPriorRacing}}, calib)
	if one.FitnessLevel != FitnessWeak {
		t.Fatalf("one signal should stay weak, got %s", one.FitnessLevel)
	}

	duplicated := ResolveNoHistoryAnchor(AnchorContext{DemandTier: DemandMedium, Signals: []FitnessSignal{SignalPriorRacing, SignalPriorRacing}}, calib)
	if duplicated.FitnessLevel != FitnessWeak {
		t.Fatalf("duplicated signal must not count twice, got %s", duplicated.FitnessLevel)
	}

	two := ResolveNoHistoryAnchor(AnchorContext{DemandTier: DemandMedium, Signals: []FitnessSignal{SignalPriorRacing, SignalConsistentWeeks}}, calib)
	if two.FitnessLevel != FitnessStrong {
		t.Fatalf("two distinct signals should promote to strong, got %s", two.FitnessLevel)
	}
	if two.StartCTL <= one.StartCTL {
		t.Fatalf("strong floor %f should exceed weak floor %f", two.StartCTL, one.StartCTL)
	}
}

func TestAnchorAvailabilityClamp(t *testing.T) {
	calib := calibration.Default()

	// Two hours a week cannot sustain the high-tier floor.
	clamped := ResolveNoHistoryAnchor(AnchorContext{
		DemandTier:              DemandHigh,
		WeeklyAvailabilityHours: float64Ptr(2),
		WeeksUntilEvent:         20,
	}, calib)
	if !clamped.FloorClampedByAvailability {
		t.Fatal("expected floor_clamped_by_availability")
	}
	if !containsString(clamped.Reasons, "floor_clamped_by_availability") {
		t.Fatalf("reasons missing clamp token: %v", clamped.Reasons)
	}
	ceiling := 2 * calib.Anchor.FallbackTSSPerHour / 7
	if clamped.StartCTL > ceiling+1e-9 {
		t.Fatalf("clamped CTL %f above availability ceiling %f", clamped.StartCTL, ceiling)
	}

	// Plenty of hours: the canonical floor stands.
	unclamped := ResolveNoHistoryAnchor(AnchorContext{
		DemandTier:              DemandHigh,
		WeeklyAvailabilityHours: float64Ptr(12),
		WeeksUntilEvent:         20,
	}, calib)
	if unclamped.FloorClampedByAvailability {
		t.Fatal("unexpected availability clamp with 12 hours")
	}
	if unclamped.StartCTL != calib.Anchor.FloorWeakHigh {
		t.Fatalf("expected canonical floor %f, got %f", calib.Anchor.FloorWeakHigh, unclamped.StartCTL)
	}
}

func TestAnchorMissingAvailabilitySkipsClampWithReason(t *testing.T) {
	calib := calibration.Default()
	result := ResolveNoHistoryAnchor(AnchorContext{DemandTier: DemandHigh, WeeksUntilEvent: 20}, calib)

	if result.FloorClampedByAvailability {
		t.Fatal("clamp must be skipped when availability is unknown")
	}
	if !containsString(result.Reasons, "availability_unknown") {
		t.Fatalf("reasons missing availability_unknown: %v", result.Reasons)
	}
	if result.StartCTL != calib.Anchor.FloorWeakHigh {
		t.Fatalf("expected canonical floor %f, got %f", calib.Anchor.FloorWeakHigh, result.StartCTL)
	}
}

func TestAnchorIntensityModelFallbackReason(t *testing.T) {
	calib := calibration.Default()

	fallback := ResolveNoHistoryAnchor(AnchorContext{
		DemandTier:              DemandMedium,
		WeeklyAvailabilityHours: float64Ptr(6),
	}, calib)
	if !containsString(fallback.Reasons, "intensity_model_fallback") {
		t.Fatalf("expected intensity fallback reason, got %v", fallback.Reasons)
	}

	modeled := ResolveNoHistoryAnchor(AnchorContext{
		DemandTier:              DemandMedium,
		WeeklyAvailabilityHours: float64Ptr(6),
		IntensityModel:          &IntensityAssumption{TSSPerHour: 65},
	}, calib)
	if containsString(modeled.Reasons, "intensity_model_fallback") {
		t.Fatalf("unexpected fallback reason with a model supplied: %v", modeled.Reasons)
	}
}

func TestAnchorTimelineFeasibilityMapsToConfidence(t *testing.T) {
	calib := calibration.Default()

	cases := []struct {
		weeks       int
		feasibility TimelineFeasibility
		confidence  Confidence
	}{
		{18, TimelineFull, ConfidenceHigh},
		{12, TimelineLimited, ConfidenceMedium},
		{4, TimelineInsufficient, ConfidenceLow},
	}
	for _, tc := range cases {
		result := ResolveNoHistoryAnchor(AnchorContext{DemandTier: DemandHigh, WeeksUntilEvent: tc.weeks}, calib)
		if result.Feasibility != tc.feasibility {
			t.Fatalf("weeks=%d: feasibility %s, want %s", tc.weeks, result.Feasibility, tc.feasibility)
		}
		if result.Confidence != tc.confidence {
			t.Fatalf("weeks=%d: confidence %s, want %s", tc.weeks, result.Confidence, tc.confidence)
		}
	}
}

func TestAnchorDeterministic(t *testing.T) {
	calib := calibration.Default()
	ctx := AnchorContext{
		DemandTier:              DemandMedium,
		Signals:                 []FitnessSignal{SignalConsistentWeeks, SignalCrossSportBase},
		WeeklyAvailabilityHours: float64Ptr(8),
		IntensityModel:          &IntensityAssumption{TSSPerHour: 60},
		WeeksUntilEvent:         14,
	}

	a := ResolveNoHistoryAnchor(ctx, calib)
	b := ResolveNoHistoryAnchor(ctx, calib)
	if a.StartCTL != b.StartCTL || a.StartWeeklyTSS != b.StartWeeklyTSS || a.Confidence != b.Confidence {
		t.Fatalf("anchor resolution not reproducible:\n%+v\n%+v", a, b)
	}
	if len(a.Reasons) != len(b.Reasons) {
		t.Fatalf("reason tokens differ between runs: %v vs %v", a.Reasons, b.Reasons)
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
