package engine

import (
	"math"
	"time"

	"peakform/internal/calibration"
)

// State is an athlete's load-response state on one day.
type State struct {
	CTL float64
	ATL float64
}

// TSB is the training stress balance (form): positive fresh, negative fatigued.
func (s State) TSB() float64 {
	return s.CTL - s.ATL
}

// ProjectionPoint is one calendar day of a projected trajectory.
type ProjectionPoint struct {
	Date    time.Time `json:"date"`
	Fitness float64   `json:"fitness"`
	Fatigue float64   `json:"fatigue"`
	Form    float64   `json:"form"`
}

// State returns the point's load-response state.
func (p ProjectionPoint) State() State {
	return State{CTL: p.Fitness, ATL: p.Fatigue}
}

func alphaFor(timeConstantDays float64) float64 {
	if timeConstantDays <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/timeConstantDays)
}

// Advance applies one day of training load to the state.
// new = prev + (load - prev) * (1 - e^(-1/tau)) for each of CTL and ATL.
func Advance(prev State, dailyLoad float64, calib calibration.Config) State {
	alphaCTL := alphaFor(calib.Dynamics.CTLTimeConstantDays)
	alphaATL := alphaFor(calib.Dynamics.ATLTimeConstantDays)
	return State{
		CTL: prev.CTL + (dailyLoad-prev.CTL)*alphaCTL,
		ATL: prev.ATL + (dailyLoad-prev.ATL)*alphaATL,
	}
}

// SimulateWeeks advances the state day by day through the given weekly loads,
// spreading each week's load evenly over its seven days. The returned slice
// holds one point per day starting the day after startDate.
func SimulateWeeks(start State, startDate time.Time, weeklyLoads []float64, calib calibration.Config) []ProjectionPoint {
	if len(weeklyLoads) == 0 {
		return nil
	}
	points := make([]ProjectionPoint, 0, len(weeklyLoads)*7)
	state := start
	day := startDate
	for _, weekly := range weeklyLoads {
		daily := weekly / 7
		for d := 0; d < 7; d++ {
			state = Advance(state, daily, calib)
			day = day.AddDate(0, 0, 1)
			points = append(points, ProjectionPoint{
				Date:    day,
				Fitness: state.CTL,
				Fatigue: state.ATL,
				Form:    state.TSB(),
			})
		}
	}
	return points
}

// weeklyCTLGain is the CTL delta produced by holding a weekly load for seven
// days from the given starting CTL.
func weeklyCTLGain(startCTL, weeklyLoad float64, calib calibration.Config) float64 {
	alpha := alphaFor(calib.Dynamics.CTLTimeConstantDays)
	retained := math.Pow(1-alpha, 7)
	return (weeklyLoad/7 - startCTL) * (1 - retained)
}

// maxWeeklyLoadForCTLRamp inverts weeklyCTLGain: the largest weekly load whose
// implied CTL gain over one week stays at or below the cap.
func maxWeeklyLoadForCTLRamp(startCTL, ctlRampCap float64, calib calibration.Config) float64 {
	alpha := alphaFor(calib.Dynamics.CTLTimeConstantDays)
	retained := math.Pow(1-alpha, 7)
	if 1-retained <= 0 {
		return startCTL * 7
	}
	return (startCTL + ctlRampCap/(1-retained)) * 7
}
