package goals

import "time"

// TargetType discriminates the Target union.
type TargetType string

const (
	TargetRacePerformance TargetType = "race_performance"
	TargetPaceThreshold   TargetType = "pace_threshold"
	TargetPowerThreshold  TargetType = "power_threshold"
	TargetHRThreshold     TargetType = "hr_threshold"
)

// ActivityCategory classifies the sport of a race target.
type ActivityCategory string

const (
	ActivityRun   ActivityCategory = "run"
	ActivityBike  ActivityCategory = "bike"
	ActivitySwim  ActivityCategory = "swim"
	ActivityOther ActivityCategory = "other"
)

// RaceTarget is a dated race with a distance and a target finishing time.
type RaceTarget struct {
	DistanceM        float64
	TargetTimeS      float64
	ActivityCategory ActivityCategory
}

// PaceTarget is a pace-threshold test target.
type PaceTarget struct {
	TargetSpeedMPS float64
	TestDurationS  float64
}

// PowerTarget is a power-threshold test target.
type PowerTarget struct {
	TargetWatts   float64
	TestDurationS float64
}

// HRTarget is a lactate-threshold heart-rate target.
type HRTarget struct {
	TargetLTHRBPM float64
}

// Target is a tagged union over the four target variants. Exactly one
// variant pointer matching Type is non-nil on a validated Target.
type Target struct {
	Type  TargetType
	Race  *RaceTarget
	Pace  *PaceTarget
	Power *PowerTarget
	HR    *HRTarget
}

// EventDurationS returns the expected event or test duration in seconds.
// HR threshold tests have no meaningful duration and report zero.
func (t Target) EventDurationS() float64 {
	switch t.Type {
	case TargetRacePerformance:
		return t.Race.TargetTimeS
	case TargetPaceThreshold:
		return t.Pace.TestDurationS
	case TargetPowerThreshold:
		return t.Power.TestDurationS
	case TargetHRThreshold:
		return 0
	}
	return 0
}

// Goal is a dated outcome the plan optimizes toward.
type Goal struct {
	ID         string
	Name       string
	TargetDate time.Time
	Priority   int
	Targets    []Target
}

// EvidenceState classifies how much historical training data backs a plan.
type EvidenceState string

const (
	EvidenceNone   EvidenceState = "none"
	EvidenceSparse EvidenceState = "sparse"
	EvidenceStale  EvidenceState = "stale"
	EvidenceRich   EvidenceState = "rich"
)

// Plan is a normalized plan document loaded from YAML.
type Plan struct {
	Athlete     string
	CurrentDate time.Time
	StartCTL    float64
	StartATL    float64
	Evidence    EvidenceState
	Weeks       int
	Profile     string
	Goals       []Goal
	Source      string
}

// PrimaryGoal returns the highest-priority goal, breaking ties by earlier
// target date, then by id for determinism.
func (p *Plan) PrimaryGoal() (Goal, bool) {
	if p == nil || len(p.Goals) == 0 {
		return Goal{}, false
	}
	best := p.Goals[0]
	for _, g := range p.Goals[1:] {
		if g.Priority > best.Priority {
			best = g
			continue
		}
		if g.Priority == best.Priority {
			if g.TargetDate.Before(best.TargetDate) {
				best = g
			} else if g.TargetDate.Equal(best.TargetDate) && g.ID < best.ID {
				best = g
			}
		}
	}
	return best, true
}
