package engine

import (
	"math"
	"reflect"
	"testing"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// simulatedPoints builds a daily series from a constant weekly load.
func simulatedPoints(weeks int, load float64, calib calibration.Config) []ProjectionPoint {
	held := make([]float64, weeks)
	for i := range held {
		held[i] = load
	}
	return SimulateWeeks(State{CTL: 40, ATL: 40}, date("2026-01-05"), held, calib)
}

func marathonGoal(id, targetDate string, priority int) goals.Goal {
	return goals.Goal{
		ID:         id,
		Name:       id,
		TargetDate: date(targetDate),
		Priority:   priority,
		Targets:    []goals.Target{marathonTarget()},
	}
}

func TestReadinessEmptyPointsYieldEmptyScores(t *testing.T) {
	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:      nil,
		Calibration: calibration.Default(),
	})
	if scores == nil || len(scores) != 0 {
		t.Fatalf("empty input should yield an empty non-nil slice, got %v", scores)
	}
}

func TestReadinessZeroGoalsPassesRawScoresThrough(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(8, 300, calib)

	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: 75,
		StartCTL:           40,
		Calibration:        calib,
	})

	want := roundAll(rawScores(points, nil, 40, calib))
	if !reflect.DeepEqual(scores, want) {
		t.Fatal("with zero goals the raw per-point scores must pass through unmodified")
	}
}

func TestReadinessTerminalPointMatchesPlanScore(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(12, 300, calib)
	goalList := []goals.Goal{marathonGoal("m", "2026-02-15", 8)}

	for _, planScore := range []float64{73.4, 12.25, 120, -5} {
		scores := ComputeProjectionPointReadinessScores(ReadinessInput{
			Points:             points,
			PlanReadinessScore: planScore,
			Goals:              goalList,
			StartCTL:           40,
			Calibration:        calib,
		})
		want := round2(clampFloat(planScore, 0, 100))
		if got := scores[len(scores)-1]; got != want {
			t.Fatalf("plan score %f: terminal readiness %f, want exactly %f", planScore, got, want)
		}
	}
}

func TestReadinessDeterministic(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(12, 310, calib)
	input := ReadinessInput{
		Points:             points,
		PlanReadinessScore: 68.5,
		Goals:              []goals.Goal{marathonGoal("m", "2026-02-22", 7)},
		StartCTL:           40,
		Calibration:        calib,
	}

	a := ComputeProjectionPointReadinessScores(input)
	b := ComputeProjectionPointReadinessScores(input)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("identical inputs produced different readiness curves")
	}
}

func TestReadinessScoresBoundedAndRounded(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(10, 320, calib)

	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: 80,
		Goals:              []goals.Goal{marathonGoal("m", "2026-02-15", 9)},
		StartCTL:           40,
		Calibration:        calib,
	})

	for i, s := range scores {
		if s < 0 || s > 100 {
			t.Fatalf("point %d: score %f out of range", i, s)
		}
		if math.Abs(s*100-math.Round(s*100)) > 1e-9 {
			t.Fatalf("point %d: score %v not rounded to 2 decimals", i, s)
		}
	}
}

func TestGoalAnchorsDetectConflicts(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(10, 300, calib)

	// One day apart: each sits inside the other's functional recovery window.
	back2back := []goals.Goal{
		marathonGoal("a", "2026-02-14", 8),
		marathonGoal("b", "2026-02-15", 8),
	}
	anchors := goalAnchors(points, back2back, calib)
	if len(anchors) != 2 {
		t.Fatalf("expected 2 anchors, got %d", len(anchors))
	}
	for _, a := range anchors {
		if !a.conflicted {
			t.Fatalf("goal %s should be marked conflicted", a.goal.ID)
		}
	}

	// Two months apart: independent peaks.
	separated := []goals.Goal{
		marathonGoal("a", "2026-01-18", 8),
		marathonGoal("b", "2026-03-08", 8),
	}
	for _, a := range goalAnchors(points, separated, calib) {
		if a.conflicted {
			t.Fatalf("goal %s should not be conflicted at a two-month gap", a.goal.ID)
		}
	}
}

func TestReadinessConflictedGoalsKeepNaturalCurve(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(12, 300, calib)
	goalList := []goals.Goal{
		marathonGoal("a", "2026-02-14", 8),
		marathonGoal("b", "2026-02-15", 8),
	}

	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: 70,
		Goals:              goalList,
		StartCTL:           40,
		Calibration:        calib,
	})

	idxB, ok := pointIndexForDate(points, goalList[1])
	if !ok {
		t.Fatal("second goal date not in series")
	}
	// The second race lands one day into the first's recovery. No stage may
	// force it to read as a fresh peak.
	if scores[idxB] >= 99 {
		t.Fatalf("back-to-back race day scored %f; must not be forced to a near-perfect peak", scores[idxB])
	}

	adjusted := applyRecoveryPenalties(rawScores(points, goalList, 40, calib), points, goalList, calib)
	raw := rawScores(points, goalList, 40, calib)
	if adjusted[idxB+3] >= raw[idxB+3] {
		t.Fatal("recovery penalty should depress the days after back-to-back races")
	}
}

func TestReadinessSpacedGoalsBothScoreWell(t *testing.T) {
	calib := calibration.Default()
	controls := ResolveEffectiveControls(ProfileOutcomeFirst, AdvancedControls{}, calib)
	goalList := []goals.Goal{
		marathonGoal("a", "2026-03-08", 9),
		marathonGoal("b", "2026-04-26", 9),
	}
	start := StartState{CTL: 42, ATL: 45, Evidence: goals.EvidenceRich}

	result, err := BuildDeterministicProjection(goalList, start, date("2026-01-05"), 16, controls, calib)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idxA, ok := pointIndexForDate(result.Points, goalList[0])
	if !ok {
		t.Fatal("first goal date not in series")
	}
	idxB, ok := pointIndexForDate(result.Points, goalList[1])
	if !ok {
		t.Fatal("second goal date not in series")
	}

	// Seven weeks apart is outside both recovery windows, so each race should
	// read as a genuine peak of its own.
	a := result.ReadinessScores[idxA]
	b := result.ReadinessScores[idxB]
	if a <= 70 || b <= 70 {
		t.Fatalf("well-spaced goals should both score above 70, got %f and %f", a, b)
	}
	if math.Abs(a-b) > 15 {
		t.Fatalf("well-spaced goals should score within 15 points of each other, got %f and %f", a, b)
	}
}

func TestReadinessBackToBackGoalsScoreInOrder(t *testing.T) {
	calib := calibration.Default()
	controls := ResolveEffectiveControls(ProfileBalanced, AdvancedControls{}, calib)
	goalList := []goals.Goal{
		marathonGoal("a", "2026-03-14", 8),
		marathonGoal("b", "2026-03-15", 8),
	}
	start := StartState{CTL: 40, ATL: 40, Evidence: goals.EvidenceRich}

	result, err := BuildDeterministicProjection(goalList, start, date("2026-01-05"), 12, controls, calib)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idxA, ok := pointIndexForDate(result.Points, goalList[0])
	if !ok {
		t.Fatal("first goal date not in series")
	}
	idxB, ok := pointIndexForDate(result.Points, goalList[1])
	if !ok {
		t.Fatal("second goal date not in series")
	}

	// The second race lands one day into the first's recovery, so it may never
	// outscore the first, and neither may present as a fresh peak.
	a := result.ReadinessScores[idxA]
	b := result.ReadinessScores[idxB]
	if b > a {
		t.Fatalf("day-after race scored %f, above the first race's %f", b, a)
	}
	if a >= 99 || b >= 99 {
		t.Fatalf("back-to-back races must not read near-perfect, got %f and %f", a, b)
	}
}

func TestReadinessIsolatedGoalIsLocalPeak(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(16, 300, calib)
	goal := marathonGoal("m", "2026-02-22", 9)

	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: 70,
		Goals:              []goals.Goal{goal},
		StartCTL:           40,
		Calibration:        calib,
	})

	gi, ok := pointIndexForDate(points, goal)
	if !ok {
		t.Fatal("goal date not in series")
	}
	lo := maxInt(0, gi-5)
	hi := minInt(len(scores)-1, gi+5)
	for j := lo; j <= hi; j++ {
		if scores[j] > scores[gi]+1.0 {
			t.Fatalf("day %+d from the goal scored %f, above the goal's %f", j-gi, scores[j], scores[gi])
		}
	}
}

func TestReadinessGoalFloorHoldsUnderAnchoring(t *testing.T) {
	calib := calibration.Default()
	points := simulatedPoints(16, 300, calib)
	goal := marathonGoal("m", "2026-02-22", 9)
	goalList := []goals.Goal{goal}

	// A terrible plan score drags the whole curve down, but the goal date may
	// never read worse than its natural fatigue-adjusted value.
	scores := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: 5,
		Goals:              goalList,
		StartCTL:           40,
		Calibration:        calib,
	})

	gi, ok := pointIndexForDate(points, goal)
	if !ok {
		t.Fatal("goal date not in series")
	}
	adjusted := applyRecoveryPenalties(rawScores(points, goalList, 40, calib), points, goalList, calib)
	if scores[gi] < round2(adjusted[gi])-0.01 {
		t.Fatalf("goal-date score %f fell below its fatigue-adjusted floor %f", scores[gi], adjusted[gi])
	}
}

func TestLimitGradientBoundsDailySteps(t *testing.T) {
	scores := []float64{50, 80, 20, 60, 58}
	limitGradient(scores, 6)
	for i := 1; i < len(scores); i++ {
		if d := math.Abs(scores[i] - scores[i-1]); d > 6+1e-9 {
			t.Fatalf("step %d: daily move %f exceeds limit", i, d)
		}
	}
}
