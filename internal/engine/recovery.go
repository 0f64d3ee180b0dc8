package engine

import (
	"math"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/goals"
)

// EventRecoveryProfile describes how much recovery an event demands.
// Derived on demand per goal target, never persisted.
type EventRecoveryProfile struct {
	RecoveryDaysFull       float64 `json:"recovery_days_full"`
	RecoveryDaysFunctional float64 `json:"recovery_days_functional"`
	FatigueIntensity       float64 `json:"fatigue_intensity"`
	ATLSpikeFactor         float64 `json:"atl_spike_factor"`
}

// ComputeEventRecoveryProfile derives the recovery demand of a single target.
// Every target variant has a defined profile; the generic guard after the
// switch only covers a malformed tag that boundary validation should have
// rejected.
func ComputeEventRecoveryProfile(target goals.Target, projectedCTL, projectedATL float64, calib calibration.Config) EventRecoveryProfile {
	r := calib.Recovery

	switch target.Type {
	case goals.TargetRacePerformance:
		hours := target.Race.TargetTimeS / 3600
		intensity := raceIntensity(hours) * activityMultiplier(target.Race.ActivityCategory)
		baseDays := clampFloat(hours*r.RaceBaseDaysPerHour, r.RaceBaseDaysMin, r.RaceBaseDaysMax)
		return EventRecoveryProfile{
			RecoveryDaysFull:       math.Round(baseDays * (0.7 + 0.3*intensity/100)),
			RecoveryDaysFunctional: math.Round(baseDays * r.FunctionalFraction),
			FatigueIntensity:       round2(intensity),
			ATLSpikeFactor:         round2(math.Min(r.ATLSpikeMax, 1+hours*r.ATLSpikePerHour)),
		}
	case goals.TargetPaceThreshold:
		return thresholdRecoveryProfile(target.Pace.TestDurationS, r)
	case goals.TargetPowerThreshold:
		return thresholdRecoveryProfile(target.Power.TestDurationS, r)
	case goals.TargetHRThreshold:
		return EventRecoveryProfile{
			RecoveryDaysFull:       r.HRFullDays,
			RecoveryDaysFunctional: r.HRFunctional,
			FatigueIntensity:       r.HRIntensity,
			ATLSpikeFactor:         r.HRSpikeFactor,
		}
	}

	// Last-resort guard for an unvalidated tag.
	return EventRecoveryProfile{
		RecoveryDaysFull:       3,
		RecoveryDaysFunctional: 1,
		FatigueIntensity:       60,
		ATLSpikeFactor:         1.1,
	}
}

func thresholdRecoveryProfile(testDurationS float64, r calibration.RecoveryConfig) EventRecoveryProfile {
	testHours := testDurationS / 3600
	baseDays := r.ThresholdBaseDays + testHours*r.ThresholdDaysPerTestHour
	return EventRecoveryProfile{
		RecoveryDaysFull:       math.Round(baseDays),
		RecoveryDaysFunctional: math.Round(baseDays * r.FunctionalFraction),
		FatigueIntensity:       r.ThresholdIntensity,
		ATLSpikeFactor:         r.ThresholdSpikeFactor,
	}
}

// raceIntensity estimates effort intensity from the event duration bucket:
// near-maximal for short races, easing down for ultra distances.
func raceIntensity(hours float64) float64 {
	switch {
	case hours < 1:
		return 95
	case hours < 3:
		return 90
	case hours < 6:
		return 85
	case hours < 12:
		return 80
	case hours < 24:
		return 75
	default:
		return 70
	}
}

func activityMultiplier(category goals.ActivityCategory) float64 {
	switch category {
	case goals.ActivityRun:
		return 1.0
	case goals.ActivityBike:
		return 0.9
	case goals.ActivitySwim:
		return 0.95
	default:
		return 0.85
	}
}

// GoalRecoveryProfile returns the most demanding recovery profile across a
// goal's targets. A goal with zero targets has no recovery demand.
func GoalRecoveryProfile(goal goals.Goal, ctl, atl float64, calib calibration.Config) (EventRecoveryProfile, bool) {
	if len(goal.Targets) == 0 {
		return EventRecoveryProfile{}, false
	}
	var best EventRecoveryProfile
	for i, target := range goal.Targets {
		profile := ComputeEventRecoveryProfile(target, ctl, atl, calib)
		if i == 0 || profile.RecoveryDaysFull > best.RecoveryDaysFull {
			best = profile
		}
	}
	return best, true
}

// ComputePostEventFatiguePenalty returns the readiness penalty a past event
// still imposes on the given day. Zero on or before the event date and for
// goals without targets. Single-phase exponential decay with a half-life of
// a third of the full recovery window; the ATL overload term adds on top when
// acute load exceeds chronic load.
func ComputePostEventFatiguePenalty(currentDate time.Time, point ProjectionPoint, eventGoal goals.Goal, calib calibration.Config) float64 {
	daysAfter := daysBetween(eventGoal.TargetDate, currentDate)
	if daysAfter <= 0 {
		return 0
	}
	profile, ok := GoalRecoveryProfile(eventGoal, point.Fitness, point.Fatigue, calib)
	if !ok {
		return 0
	}

	halfLife := profile.RecoveryDaysFull / 3
	if halfLife <= 0 {
		return 0
	}
	decay := math.Pow(0.5, float64(daysAfter)/halfLife)

	atlOverload := 0.0
	if point.Fitness > 0 {
		atlOverload = math.Max(0, (point.Fatigue/point.Fitness-1)*calib.Recovery.ATLOverloadScale)
	}
	basePenalty := profile.FatigueIntensity * calib.Recovery.PenaltyBaseFraction

	return math.Min(calib.Recovery.PenaltyMax, (basePenalty+atlOverload)*decay)
}

// daysBetween returns whole calendar days from a to b (positive when b is
// after a). Both are treated as date-only values.
func daysBetween(a, b time.Time) int {
	aDay := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bDay := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bDay.Sub(aDay).Hours() / 24)
}
