package engine

import (
	"math"
	"reflect"
	"testing"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

func balancedControls(t *testing.T) EffectiveControls {
	t.Helper()
	return ResolveEffectiveControls(ProfileBalanced, AdvancedControls{}, calibration.Default())
}

func TestOptimizeWeeklyLoadsRespectsRampCaps(t *testing.T) {
	calib := calibration.Default()
	controls := balancedControls(t)
	start := State{CTL: 40, ATL: 40}
	startDate := date("2026-01-05")
	goal := goals.Goal{ID: "m", Name: "marathon", TargetDate: date("2026-04-26"), Priority: 8, Targets: []goals.Target{marathonTarget()}}

	loads := OptimizeWeeklyLoads([]goals.Goal{goal}, start, startDate, 16, controls, goals.EvidenceRich, calib)
	if len(loads) != 16 {
		t.Fatalf("expected 16 committed loads, got %d", len(loads))
	}

	const eps = 1e-4
	prev := start.CTL * 7
	state := start
	for i, load := range loads {
		low := prev * (1 - controls.MaxWeeklyTSSRampPct)
		high := prev * (1 + controls.MaxWeeklyTSSRampPct)
		if load < low-eps || load > high+eps {
			t.Fatalf("week %d: load %f outside ramp bounds [%f, %f]", i, load, low, high)
		}

		before := state.CTL
		daily := load / 7
		for d := 0; d < 7; d++ {
			state = Advance(state, daily, calib)
		}
		if gain := state.CTL - before; gain > controls.MaxCTLRampPerWeek+eps {
			t.Fatalf("week %d: CTL gain %f exceeds cap %f", i, gain, controls.MaxCTLRampPerWeek)
		}
		prev = load
	}
}

func TestOptimizeWeeklyLoadsDeterministic(t *testing.T) {
	calib := calibration.Default()
	controls := balancedControls(t)
	start := State{CTL: 45, ATL: 50}
	goal := goals.Goal{ID: "m", TargetDate: date("2026-03-15"), Priority: 7, Targets: []goals.Target{marathonTarget()}}

	a := OptimizeWeeklyLoads([]goals.Goal{goal}, start, date("2026-01-05"), 10, controls, goals.EvidenceSparse, calib)
	b := OptimizeWeeklyLoads([]goals.Goal{goal}, start, date("2026-01-05"), 10, controls, goals.EvidenceSparse, calib)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical inputs produced different load sequences:\n%v\n%v", a, b)
	}
}

func TestOptimizeWeeklyLoadsZeroWeeks(t *testing.T) {
	calib := calibration.Default()
	loads := OptimizeWeeklyLoads(nil, State{CTL: 40, ATL: 40}, date("2026-01-05"), 0, balancedControls(t), goals.EvidenceNone, calib)
	if loads == nil || len(loads) != 0 {
		t.Fatalf("zero weeks should yield an empty sequence, got %v", loads)
	}
}

func TestCandidateLatticeStaysInsideBounds(t *testing.T) {
	calib := calibration.Default()
	controls := balancedControls(t)

	prev := 300.0
	low := prev * (1 - controls.MaxWeeklyTSSRampPct)
	high := math.Min(prev*(1+controls.MaxWeeklyTSSRampPct), maxWeeklyLoadForCTLRamp(42, controls.MaxCTLRampPerWeek, calib))

	lattice := candidateLattice(prev, 42, controls, calib)
	if len(lattice) != controls.CandidateSteps {
		t.Fatalf("expected %d candidates, got %d", controls.CandidateSteps, len(lattice))
	}
	for i, cand := range lattice {
		if cand < low || cand > high {
			t.Fatalf("candidate %d = %f outside [%f, %f]", i, cand, low, high)
		}
	}
	if lattice[0] > lattice[len(lattice)-1] {
		t.Fatalf("lattice should ascend: %v", lattice)
	}
}

func TestCandidateLatticeBootstrapWithoutHistory(t *testing.T) {
	calib := calibration.Default()
	controls := balancedControls(t)

	lattice := candidateLattice(0, 0, controls, calib)
	for i, cand := range lattice {
		if cand < 0 {
			t.Fatalf("candidate %d negative: %f", i, cand)
		}
		if cand > calib.Optimizer.BootstrapWeeklyLoad {
			t.Fatalf("candidate %d = %f exceeds bootstrap ceiling %f", i, cand, calib.Optimizer.BootstrapWeeklyLoad)
		}
	}
}

func TestClassifyWeekPhase(t *testing.T) {
	calib := calibration.Default()
	goal := goals.Goal{ID: "m", TargetDate: date("2026-03-07"), Priority: 8, Targets: []goals.Target{marathonTarget()}}
	goalList := []goals.Goal{goal}

	cases := []struct {
		name      string
		weekIdx   int
		weekStart time.Time
		goals     []goals.Goal
		want      weekPhase
	}{
		{"event week contains the goal date", 8, date("2026-03-02"), goalList, phaseEvent},
		{"taper inside the pre-goal window", 6, date("2026-02-16"), goalList, phaseTaper},
		{"recovery just after the goal", 9, date("2026-03-09"), goalList, phaseRecovery},
		{"deload every fourth week", 3, date("2026-01-26"), nil, phaseDeload},
		{"plain ramp otherwise", 0, date("2026-01-05"), nil, phaseRamp},
	}
	for _, tc := range cases {
		if got := classifyWeekPhase(tc.weekIdx, tc.weekStart, tc.goals, calib); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestNearestGoalInSimulationSkipsPastGoals(t *testing.T) {
	calib := calibration.Default()
	weekStart := date("2026-02-02")
	sim := SimulateWeeks(State{CTL: 40, ATL: 40}, weekStart, []float64{280, 280, 280}, calib)

	past := goals.Goal{ID: "past", TargetDate: date("2026-01-15"), Priority: 9}
	upcoming := goals.Goal{ID: "next", TargetDate: date("2026-02-10"), Priority: 5}

	goal, idx, ok := nearestGoalInSimulation(sim, weekStart, []goals.Goal{past, upcoming})
	if !ok {
		t.Fatal("expected an upcoming goal")
	}
	if goal.ID != "next" {
		t.Fatalf("past goals must be ignored, got %s", goal.ID)
	}
	if idx < 0 || idx >= len(sim) {
		t.Fatalf("point index %d outside simulation", idx)
	}
}
