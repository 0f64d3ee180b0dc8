package engine

import (
	"math"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// weekPhase classifies a plan week for curvature-envelope purposes.
type weekPhase string

const (
	phaseRamp     weekPhase = "ramp"
	phaseDeload   weekPhase = "deload"
	phaseTaper    weekPhase = "taper"
	phaseEvent    weekPhase = "event"
	phaseRecovery weekPhase = "recovery"
)

// OptimizeWeeklyLoads selects one weekly training load per plan week by
// bounded best-of-N search, left to right with no backtracking: each week's
// choice is committed before advancing, which bounds search cost to
// O(weeks x candidates x lookahead).
//
// Hard ramp caps are enforced at candidate generation, never as soft
// penalties, so no committed sequence can violate them regardless of the
// objective weighting. Ties break toward the candidate closest to the
// previous week's load.
func OptimizeWeeklyLoads(goalList []goals.Goal, start State, startDate time.Time, weeks int, controls EffectiveControls, evidence goals.EvidenceState, calib calibration.Config) []float64 {
	if weeks <= 0 {
		return []float64{}
	}

	mult := evidenceMultiplier(evidence, calib)
	committed := make([]float64, 0, weeks)
	state := start
	prevLoad := start.CTL * 7
	prevPrevLoad := prevLoad

	for week := 0; week < weeks; week++ {
		candidates := candidateLattice(prevLoad, state.CTL, controls, calib)
		weekStart := startDate.AddDate(0, 0, week*7)
		phase := classifyWeekPhase(week, weekStart, goalList, calib)

		bestLoad := candidates[0]
		bestScore := math.Inf(1)
		bestDistance := math.Inf(1)
		for _, cand := range candidates {
			score := scoreCandidate(cand, prevLoad, prevPrevLoad, state, weekStart, week, phase, goalList, start.CTL, mult, controls, calib)
			distance := math.Abs(cand - prevLoad)
			if score < bestScore || (score == bestScore && distance < bestDistance) {
				bestScore = score
				bestDistance = distance
				bestLoad = cand
			}
		}

		daily := bestLoad / 7
		for d := 0; d < 7; d++ {
			state = Advance(state, daily, calib)
		}
		committed = append(committed, bestLoad)
		prevPrevLoad = prevLoad
		prevLoad = bestLoad
	}

	return committed
}

// candidateLattice generates the trial weekly loads for one slot. The lattice
// spans the ramp-cap bounds relative to the last committed week, further
// clipped so the implied CTL gain over the week cannot exceed the CTL ramp
// cap. A candidate outside either cap is never generated.
func candidateLattice(prevLoad, currentCTL float64, controls EffectiveControls, calib calibration.Config) []float64 {
	steps := controls.CandidateSteps
	if steps < 1 {
		steps = 1
	}

	var low, high float64
	if prevLoad <= 0 {
		low = 0
		high = math.Min(calib.Optimizer.BootstrapWeeklyLoad, maxWeeklyLoadForCTLRamp(currentCTL, controls.MaxCTLRampPerWeek, calib))
	} else {
		low = prevLoad * (1 - controls.MaxWeeklyTSSRampPct)
		high = prevLoad * (1 + controls.MaxWeeklyTSSRampPct)
		ctlCap := maxWeeklyLoadForCTLRamp(currentCTL, controls.MaxCTLRampPerWeek, calib)
		if high > ctlCap {
			high = ctlCap
		}
		if low > high {
			low = high
		}
	}
	if low < 0 {
		low = 0
	}

	if steps == 1 || high == low {
		return []float64{round2(low)}
	}
	lattice := make([]float64, 0, steps)
	stepSize := (high - low) / float64(steps-1)
	for i := 0; i < steps; i++ {
		// Rounded for determinism, then clamped so rounding can never step
		// outside the hard caps.
		lattice = append(lattice, clampFloat(round2(low+stepSize*float64(i)), low, high))
	}
	return lattice
}

// scoreCandidate simulates the candidate forward through the lookahead
// horizon and evaluates the multi-term objective. Lower is better.
func scoreCandidate(cand, prevLoad, prevPrevLoad float64, state State, weekStart time.Time, weekIdx int, phase weekPhase, goalList []goals.Goal, planStartCTL, evidenceMult float64, controls EffectiveControls, calib calibration.Config) float64 {
	o := calib.Optimizer

	lookahead := controls.LookaheadWeeks
	if lookahead < 1 {
		lookahead = 1
	}
	held := make([]float64, lookahead)
	for i := range held {
		held[i] = cand
	}
	sim := SimulateWeeks(state, weekStart, held, calib)

	// Goal readiness at the nearest upcoming goal, priority weighted.
	preparedness := 0.0
	if goal, idx, ok := nearestGoalInSimulation(sim, weekStart, goalList); ok {
		raw := rawScores(sim, goalList, planStartCTL, calib)
		adjusted := applyRecoveryPenalties(raw, sim, goalList, calib)
		priorityWeight := float64(goal.Priority) / 10
		preparedness = (100 - adjusted[idx]) * priorityWeight
	}

	// Risk: acute load outrunning chronic load across the simulated horizon.
	risk := 0.0
	for _, p := range sim {
		if p.Fitness > 0 {
			risk += math.Max(0, p.Fatigue/p.Fitness-o.RiskATLRatio)
		}
	}
	if len(sim) > 0 {
		risk = risk / float64(len(sim)) * o.RiskScale
	}

	rel := math.Max(prevLoad, 1)
	volatility := math.Pow((cand-prevLoad)/rel, 2) * o.VolatilityScale
	churn := math.Abs(cand-prevLoad) / rel * o.ChurnScale

	curvature := (cand - 2*prevLoad + prevPrevLoad) / rel
	curvatureTarget := controls.CurvatureTarget * o.CurvatureTargetScale
	curvatureMismatch := math.Pow(curvature-curvatureTarget, 2) * o.CurvatureMismatchScale *
		phaseFactor(phase, o) * controls.CurvatureWeight * controls.CurvatureStrength

	// Capacity envelope: penalize candidates drifting outside the safe band.
	bounds := boundsForWeek(weekIdx, planStartCTL, evidenceMult, calib)
	overshoot := 0.0
	if bounds.SafeHigh > 0 {
		overshoot = math.Max(0, (cand-bounds.SafeHigh)/bounds.SafeHigh)
	}
	undershoot := 0.0
	if bounds.SafeLow > 0 {
		undershoot = math.Max(0, (bounds.SafeLow-cand)/bounds.SafeLow)
	}
	e := calib.Envelope
	envelopePenalty := (e.OvershootWeight*overshoot + e.UndershootWeight*undershoot) * 100

	return controls.PreparednessWeight*preparedness +
		controls.RiskWeight*risk +
		controls.VolatilityWeight*volatility +
		controls.ChurnWeight*churn +
		curvatureMismatch +
		envelopePenalty
}

// nearestGoalInSimulation returns the first upcoming goal on or after the
// week start, with the simulated point index to read its readiness from: the
// goal's own date when inside the horizon, otherwise the horizon end.
func nearestGoalInSimulation(sim []ProjectionPoint, weekStart time.Time, goalList []goals.Goal) (goals.Goal, int, bool) {
	if len(sim) == 0 {
		return goals.Goal{}, 0, false
	}
	bestDays := math.MaxInt32
	var best goals.Goal
	found := false
	for _, goal := range goalList {
		d := daysBetween(weekStart, goal.TargetDate)
		if d < 0 || d >= bestDays {
			continue
		}
		bestDays = d
		best = goal
		found = true
	}
	if !found {
		return goals.Goal{}, 0, false
	}
	idx := bestDays - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sim) {
		idx = len(sim) - 1
	}
	return best, idx, true
}

// classifyWeekPhase labels the week for curvature-envelope purposes. Event
// weeks contain a goal date; taper weeks sit inside the taper window before a
// goal; recovery weeks sit inside the functional-recovery window after one;
// every Nth remaining week is a deload.
func classifyWeekPhase(weekIdx int, weekStart time.Time, goalList []goals.Goal, calib calibration.Config) weekPhase {
	o := calib.Optimizer
	weekEnd := weekStart.AddDate(0, 0, 6)

	for _, goal := range goalList {
		fromStart := daysBetween(weekStart, goal.TargetDate)
		if fromStart >= 0 && daysBetween(weekEnd, goal.TargetDate) <= 0 {
			return phaseEvent
		}
	}
	for _, goal := range goalList {
		toGoal := daysBetween(weekEnd, goal.TargetDate)
		if toGoal > 0 && toGoal <= o.TaperWindowDays {
			return phaseTaper
		}
	}
	for _, goal := range goalList {
		profile, ok := GoalRecoveryProfile(goal, 0, 0, calib)
		if !ok {
			continue
		}
		sinceGoal := daysBetween(goal.TargetDate, weekStart)
		if sinceGoal > 0 && float64(sinceGoal) <= profile.RecoveryDaysFull {
			return phaseRecovery
		}
	}
	if o.DeloadEveryWeeks > 0 && (weekIdx+1)%o.DeloadEveryWeeks == 0 {
		return phaseDeload
	}
	return phaseRamp
}

func phaseFactor(phase weekPhase, o calibration.OptimizerConfig) float64 {
	switch phase {
	case phaseDeload:
		return o.PhaseFactorDeload
	case phaseTaper:
		return o.PhaseFactorTaper
	case phaseEvent:
		return o.PhaseFactorEvent
	case phaseRecovery:
		return o.PhaseFactorRecovery
	default:
		return o.PhaseFactorRamp
	}
}
