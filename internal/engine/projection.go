package engine

import (
	"fmt"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// StartState is the athlete's load-response state on the projection start
// date, plus the evidence classification of the history behind it.
type StartState struct {
	CTL      float64
	ATL      float64
	Evidence goals.EvidenceState
}

// FeasibilityMetadata summarizes the horizon the projection covered.
type FeasibilityMetadata struct {
	Weeks          int      `json:"weeks"`
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date,omitempty"`
	GoalsInHorizon []string `json:"goals_in_horizon,omitempty"`
	GoalsBeyond    []string `json:"goals_beyond_horizon,omitempty"`
	Reasons        []string `json:"reasons,omitempty"`
}

// ProjectionResult is everything one projection run produces.
type ProjectionResult struct {
	Points             []ProjectionPoint   `json:"points"`
	WeeklyLoads        []float64           `json:"weekly_loads"`
	ReadinessScores    []float64           `json:"readiness_scores"`
	CompositeReadiness CompositeReadiness  `json:"composite_readiness"`
	Feasibility        FeasibilityMetadata `json:"feasibility_metadata"`
}

// BuildDeterministicProjection runs the full pipeline: weekly-load search,
// daily dynamics, capacity envelope, durability, composite blend, then the
// goal-aware readiness curve anchored to the composite score.
//
// Preview and create callers must both enter through this function with
// identically constructed arguments; it is the single engine entry point.
// Goals are taken by value and never mutated. Zero weeks is valid degenerate
// input and yields an empty projection. The only error path is a structural
// target-shape violation that boundary validation should have caught.
func BuildDeterministicProjection(goalList []goals.Goal, start StartState, startDate time.Time, weeks int, controls EffectiveControls, calib calibration.Config) (ProjectionResult, error) {
	if err := checkGoalShapes(goalList); err != nil {
		return ProjectionResult{}, err
	}

	if weeks <= 0 {
		return ProjectionResult{
			Points:          []ProjectionPoint{},
			WeeklyLoads:     []float64{},
			ReadinessScores: []float64{},
			CompositeReadiness: ComputeCompositeReadiness(
				0,
				ComputeCapacityEnvelope(nil, start.CTL, start.Evidence, calib),
				ComputeDurabilityScore(nil, calib),
				start.Evidence,
				calib,
			),
			Feasibility: FeasibilityMetadata{
				Weeks:     0,
				StartDate: startDate.Format("2006-01-02"),
				Reasons:   []string{"empty_horizon"},
			},
		}, nil
	}

	startState := State{CTL: start.CTL, ATL: start.ATL}
	weeklyLoads := OptimizeWeeklyLoads(goalList, startState, startDate, weeks, controls, start.Evidence, calib)
	points := SimulateWeeks(startState, startDate, weeklyLoads, calib)

	envelope := ComputeCapacityEnvelope(weeklyLoads, start.CTL, start.Evidence, calib)
	durability := ComputeDurabilityScore(weeklyLoads, calib)
	attainment := GoalAttainmentScore(points, goalList, start.CTL, calib)
	composite := ComputeCompositeReadiness(attainment, envelope, durability, start.Evidence, calib)

	readiness := ComputeProjectionPointReadinessScores(ReadinessInput{
		Points:             points,
		PlanReadinessScore: composite.ReadinessScore,
		Goals:              goalList,
		StartCTL:           start.CTL,
		Calibration:        calib,
	})

	return ProjectionResult{
		Points:             points,
		WeeklyLoads:        weeklyLoads,
		ReadinessScores:    readiness,
		CompositeReadiness: composite,
		Feasibility:        feasibilityMetadata(goalList, startDate, weeks, points),
	}, nil
}

func feasibilityMetadata(goalList []goals.Goal, startDate time.Time, weeks int, points []ProjectionPoint) FeasibilityMetadata {
	meta := FeasibilityMetadata{
		Weeks:     weeks,
		StartDate: startDate.Format("2006-01-02"),
	}
	if len(points) > 0 {
		meta.EndDate = points[len(points)-1].Date.Format("2006-01-02")
	}
	horizonDays := weeks * 7
	for _, goal := range goalList {
		d := daysBetween(startDate, goal.TargetDate)
		switch {
		case d < 0:
			meta.GoalsBeyond = append(meta.GoalsBeyond, goal.ID)
			meta.Reasons = appendUnique(meta.Reasons, "goal_before_start")
		case d > horizonDays:
			meta.GoalsBeyond = append(meta.GoalsBeyond, goal.ID)
			meta.Reasons = appendUnique(meta.Reasons, "goal_beyond_horizon")
		default:
			meta.GoalsInHorizon = append(meta.GoalsInHorizon, goal.ID)
		}
	}
	return meta
}

// checkGoalShapes fails fast on targets whose variant payload does not match
// the tag. These are structural invariants the boundary validator upholds;
// a violation here means a caller bypassed validation.
func checkGoalShapes(goalList []goals.Goal) error {
	for gi, goal := range goalList {
		for ti, target := range goal.Targets {
			var ok bool
			switch target.Type {
			case goals.TargetRacePerformance:
				ok = target.Race != nil
			case goals.TargetPaceThreshold:
				ok = target.Pace != nil
			case goals.TargetPowerThreshold:
				ok = target.Power != nil
			case goals.TargetHRThreshold:
				ok = target.HR != nil
			default:
				return fmt.Errorf("goals[%d].targets[%d]: unknown target_type %q", gi, ti, target.Type)
			}
			if !ok {
				return fmt.Errorf("goals[%d].targets[%d]: %s payload is missing", gi, ti, target.Type)
			}
		}
	}
	return nil
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
