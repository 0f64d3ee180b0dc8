package engine

import (
	"math"
	"sort"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// ReadinessInput is everything the daily readiness scorer consumes. Points
// and goals are read-only; the scorer never mutates caller data.
type ReadinessInput struct {
	Points             []ProjectionPoint
	PlanReadinessScore float64
	Goals              []goals.Goal
	StartCTL           float64
	Calibration        calibration.Config
}

// ComputeProjectionPointReadinessScores converts a daily CTL/ATL/TSB series
// into a 0-100 readiness score per day. Identical inputs always produce
// identical output; there is no clock or randomness inside.
//
// With zero goals the raw per-point scores are returned unmodified. Conflicting
// goals (too close together to each be a local peak) skip forced peak
// enforcement and keep their natural fatigue-penalized curve; forcing every
// goal to a near-maximum score regardless of fatigue state is exactly the
// behavior this stage exists to avoid.
func ComputeProjectionPointReadinessScores(input ReadinessInput) []float64 {
	points := input.Points
	calib := input.Calibration
	if len(points) == 0 {
		return []float64{}
	}

	raw := rawScores(points, input.Goals, input.StartCTL, calib)
	if len(input.Goals) == 0 {
		return roundAll(raw)
	}

	adjusted := applyRecoveryPenalties(raw, points, input.Goals, calib)

	scores := make([]float64, len(adjusted))
	copy(scores, adjusted)

	anchors := goalAnchors(points, input.Goals, calib)
	for pass := 0; pass < calib.Readiness.SmoothingPasses; pass++ {
		before := make([]float64, len(scores))
		copy(before, scores)

		enforcePeaks(scores, anchors, calib)
		limitGradient(scores, calib.Readiness.MaxDailyStep)

		if maxAbsDelta(before, scores) < calib.Readiness.SmoothingEpsilon {
			break
		}
	}

	anchorToPlanScore(scores, adjusted, anchors, input.PlanReadinessScore, calib)
	return roundAll(scores)
}

// GoalAttainmentScore is the priority-weighted mean of the fatigue-adjusted
// raw readiness at each goal date. It feeds the composite blend and is
// computed before terminal anchoring, so the composite does not depend on
// itself.
func GoalAttainmentScore(points []ProjectionPoint, goalList []goals.Goal, startCTL float64, calib calibration.Config) float64 {
	if len(points) == 0 {
		return 0
	}
	raw := rawScores(points, goalList, startCTL, calib)
	adjusted := applyRecoveryPenalties(raw, points, goalList, calib)

	var weightedSum, weightTotal float64
	for _, goal := range goalList {
		idx, ok := pointIndexForDate(points, goal)
		if !ok {
			continue
		}
		weight := float64(goal.Priority)
		weightedSum += adjusted[idx] * weight
		weightTotal += weight
	}
	if weightTotal == 0 {
		return round2(adjusted[len(adjusted)-1])
	}
	return round2(weightedSum / weightTotal)
}

// rawScores computes the per-point readiness signal before event-recovery
// penalties: a blend of progress-relative CTL growth, absolute CTL versus
// peak, form distance from the goal-appropriate TSB target, and an ATL
// overload penalty. The form contribution gains weight as the nearest
// upcoming goal approaches.
func rawScores(points []ProjectionPoint, goalList []goals.Goal, startCTL float64, calib calibration.Config) []float64 {
	r := calib.Readiness

	peakCTL := 0.0
	for _, p := range points {
		if p.Fitness > peakCTL {
			peakCTL = p.Fitness
		}
	}

	out := make([]float64, len(points))
	for i, p := range points {
		growth := 1.0
		if peakCTL > startCTL {
			growth = clamp01((p.Fitness - startCTL) / (peakCTL - startCTL))
		}
		growth = math.Pow(growth, r.FitnessGrowthExponent)

		abs := 1.0
		if peakCTL > 0 {
			abs = clamp01(p.Fitness / peakCTL)
		}
		fitness := r.FitnessGrowthWeight*growth + (1-r.FitnessGrowthWeight)*abs

		daysToGoal, durationS, hasUpcoming := nearestUpcomingGoal(p.Date, goalList)
		targetTSB := r.TargetTSBLong
		if hasUpcoming {
			targetTSB = lerp(r.TargetTSBShort, r.TargetTSBLong, clamp01(durationS/3600/24))
		}
		form := clamp01(1 - math.Abs(p.Form-targetTSB)/r.FormToleranceTSB)

		fatigue := 1.0
		if p.Fitness > 0 {
			fatigue = clamp01(1 - math.Max(0, p.Fatigue/p.Fitness-1)*r.FatigueOverloadScale)
		} else if p.Fatigue > 0 {
			fatigue = 0
		}

		proximity := 0.0
		if hasUpcoming && r.GoalProximityDays > 0 {
			proximity = clamp01(1 - float64(daysToGoal)/r.GoalProximityDays)
		}
		formWeight := lerp(r.FormWeightBase, r.FormWeightNearGoal, proximity)
		remaining := 1 - formWeight
		fitnessWeight := remaining * 0.7
		fatigueWeight := remaining * 0.3

		score := 100 * (fitnessWeight*fitness + formWeight*form + fatigueWeight*fatigue)

		// Residual synergy bonus: a small continuous lift when fitness and
		// form align near their peaks. The old override that forced such
		// points to near-100 is gone and must stay gone.
		if fitness > r.SynergyFitnessGate && form > r.SynergyFormGate {
			score *= 1 + r.SynergyBonus*fitness*form
		}

		out[i] = clampFloat(score, 0, 100)
	}
	return out
}

// applyRecoveryPenalties subtracts, per point, the maximum post-event fatigue
// penalty across all goals. The single most limiting event dominates.
func applyRecoveryPenalties(raw []float64, points []ProjectionPoint, goalList []goals.Goal, calib calibration.Config) []float64 {
	out := make([]float64, len(raw))
	for i, p := range points {
		maxPenalty := 0.0
		for _, goal := range goalList {
			penalty := ComputePostEventFatiguePenalty(p.Date, p, goal, calib)
			if penalty > maxPenalty {
				maxPenalty = penalty
			}
		}
		out[i] = clampFloat(raw[i]-maxPenalty, 0, 100)
	}
	return out
}

// goalAnchor is a goal resolved against the point series.
type goalAnchor struct {
	goal       goals.Goal
	pointIdx   int
	peakWindow int
	conflicted bool
}

// goalAnchors resolves each goal to a point index, computes its dynamic peak
// window, and marks conflicts. Goal A conflicts with goal B when the two
// dates are within B's functional-recovery-day threshold; a goal conflicted
// by any other goal skips forced peak enforcement.
func goalAnchors(points []ProjectionPoint, goalList []goals.Goal, calib calibration.Config) []goalAnchor {
	r := calib.Readiness

	var anchors []goalAnchor
	for _, goal := range goalList {
		idx, ok := pointIndexForDate(points, goal)
		if !ok {
			continue
		}

		taperDays := r.TaperDaysMin
		recoveryFull := 0.0
		if profile, has := GoalRecoveryProfile(goal, points[idx].Fitness, points[idx].Fatigue, calib); has {
			taperDays = clampFloat(r.TaperDaysMin+(r.TaperDaysMax-r.TaperDaysMin)*profile.FatigueIntensity/100, r.TaperDaysMin, r.TaperDaysMax)
			recoveryFull = profile.RecoveryDaysFull
		}
		window := int(math.Round(taperDays + r.PeakRecoveryFraction*recoveryFull))

		conflicted := false
		for _, other := range goalList {
			if other.ID == goal.ID {
				continue
			}
			otherProfile, has := GoalRecoveryProfile(other, points[idx].Fitness, points[idx].Fatigue, calib)
			if !has {
				continue
			}
			dayGap := daysBetween(goal.TargetDate, other.TargetDate)
			if dayGap < 0 {
				dayGap = -dayGap
			}
			if float64(dayGap) <= otherProfile.RecoveryDaysFunctional {
				conflicted = true
				break
			}
		}

		anchors = append(anchors, goalAnchor{
			goal:       goal,
			pointIdx:   idx,
			peakWindow: window,
			conflicted: conflicted,
		})
	}

	sort.SliceStable(anchors, func(i, j int) bool { return anchors[i].pointIdx < anchors[j].pointIdx })
	return anchors
}

// enforcePeaks raises each non-conflicted goal's score to the local maximum
// of its peak window and caps surrounding days by a linear decay from the
// goal's score, so the goal date reads as the window's peak.
func enforcePeaks(scores []float64, anchors []goalAnchor, calib calibration.Config) {
	decay := calib.Readiness.PeakDecayPerDay
	for _, anchor := range anchors {
		if anchor.conflicted {
			continue
		}
		gi := anchor.pointIdx
		lo := maxInt(0, gi-anchor.peakWindow)
		hi := minInt(len(scores)-1, gi+anchor.peakWindow)

		localMax := scores[gi]
		for j := lo; j <= hi; j++ {
			if scores[j] > localMax {
				localMax = scores[j]
			}
		}
		scores[gi] = localMax

		for j := lo; j <= hi; j++ {
			if j == gi {
				continue
			}
			dist := float64(absInt(j - gi))
			allowed := scores[gi] - decay*dist
			if scores[j] > allowed {
				scores[j] = allowed
			}
		}
	}
}

// limitGradient bounds day-to-day score movement to maxStep in either
// direction, sweeping forward once.
func limitGradient(scores []float64, maxStep float64) {
	if maxStep <= 0 {
		return
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1]+maxStep {
			scores[i] = scores[i-1] + maxStep
		} else if scores[i] < scores[i-1]-maxStep {
			scores[i] = scores[i-1] - maxStep
		}
	}
}

// anchorToPlanScore forces the terminal point to the plan-level composite
// score and eases earlier points toward consistency with it using a
// power-curve progress blend. Goal-date points are floored at their
// fatigue-adjusted raw value so anchoring never shows a goal worse than its
// natural computation; the terminal point itself is exempt because terminal
// equality is the stronger contract.
func anchorToPlanScore(scores, adjusted []float64, anchors []goalAnchor, planScore float64, calib calibration.Config) {
	n := len(scores)
	terminal := clampFloat(planScore, 0, 100)

	for i := 0; i < n; i++ {
		progress := float64(i+1) / float64(n)
		w := math.Pow(progress, calib.Readiness.AnchorEaseExponent)
		scores[i] = scores[i]*(1-w) + terminal*w
	}
	scores[n-1] = terminal

	for _, anchor := range anchors {
		if anchor.pointIdx == n-1 {
			continue
		}
		if scores[anchor.pointIdx] < adjusted[anchor.pointIdx] {
			scores[anchor.pointIdx] = adjusted[anchor.pointIdx]
		}
	}
}

// nearestUpcomingGoal finds the closest goal on or after the date and returns
// the day distance and that goal's longest target duration.
func nearestUpcomingGoal(date time.Time, goalList []goals.Goal) (daysTo int, durationS float64, ok bool) {
	bestDays := math.MaxInt32
	for _, goal := range goalList {
		d := daysBetween(date, goal.TargetDate)
		if d < 0 || d >= bestDays {
			continue
		}
		bestDays = d
		durationS = longestTargetDuration(goal)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return bestDays, durationS, true
}

func longestTargetDuration(goal goals.Goal) float64 {
	longest := 0.0
	for _, t := range goal.Targets {
		if d := t.EventDurationS(); d > longest {
			longest = d
		}
	}
	return longest
}

func pointIndexForDate(points []ProjectionPoint, goal goals.Goal) (int, bool) {
	for i, p := range points {
		if daysBetween(p.Date, goal.TargetDate) == 0 {
			return i, true
		}
	}
	return 0, false
}

func roundAll(scores []float64) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = round2(clampFloat(s, 0, 100))
	}
	return out
}

func maxAbsDelta(a, b []float64) float64 {
	max := 0.0
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > max {
			max = d
		}
	}
	return max
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
