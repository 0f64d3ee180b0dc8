package goals

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

const (
	priorityMin     = 1
	priorityMax     = 10
	priorityDefault = 5
)

type rawPlan struct {
	Athlete     string     `yaml:"athlete"`
	CurrentDate string     `yaml:"current_date"`
	StartCTL    *float64   `yaml:"start_ctl"`
	StartATL    *float64   `yaml:"start_atl"`
	Evidence    string     `yaml:"evidence"`
	Weeks       *int       `yaml:"weeks"`
	Profile     string     `yaml:"profile"`
	Goals       []rawGoal  `yaml:"goals"`
	Projection  *yaml.Node `yaml:"projection"`
}

type rawGoal struct {
	ID         string      `yaml:"goal_id"`
	Name       string      `yaml:"name"`
	TargetDate string      `yaml:"target_date"`
	Priority   *int        `yaml:"priority"`
	Targets    []rawTarget `yaml:"targets"`
}

type rawTarget struct {
	Type             string   `yaml:"target_type"`
	DistanceM        *float64 `yaml:"distance_m"`
	TargetTimeS      *float64 `yaml:"target_time_s"`
	ActivityCategory string   `yaml:"activity_category"`
	TargetSpeedMPS   *float64 `yaml:"target_speed_mps"`
	TargetWatts      *float64 `yaml:"target_watts"`
	TestDurationS    *float64 `yaml:"test_duration_s"`
	TargetLTHRBPM    *float64 `yaml:"target_lthr_bpm"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// ParseAndValidatePlan unmarshals and validates a YAML plan document.
// Structural problems surface here with path-addressable messages; they never
// travel into the engine. Cosmetic out-of-range values (priority) are clamped
// rather than rejected.
func ParseAndValidatePlan(data []byte, source string) (Plan, error) {
	var raw rawPlan
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Plan{}, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawPlan(raw, source)
}

func validateRawPlan(raw rawPlan, source string) (Plan, error) {
	var errs ValidationErrors

	plan := Plan{
		Athlete: strings.TrimSpace(raw.Athlete),
		Profile: strings.TrimSpace(raw.Profile),
		Source:  source,
	}

	currentDate, err := parseDate(raw.CurrentDate)
	if err != nil {
		errs = append(errs, ValidationError{File: source, Field: "current_date", Message: err.Error()})
	}
	plan.CurrentDate = currentDate

	if raw.StartCTL != nil {
		if *raw.StartCTL < 0 {
			errs = append(errs, ValidationError{File: source, Field: "start_ctl", Message: "must be >= 0"})
		}
		plan.StartCTL = *raw.StartCTL
	}
	if raw.StartATL != nil {
		if *raw.StartATL < 0 {
			errs = append(errs, ValidationError{File: source, Field: "start_atl", Message: "must be >= 0"})
		}
		plan.StartATL = *raw.StartATL
	} else {
		plan.StartATL = plan.StartCTL
	}

	evidence, evErr := parseEvidence(raw.Evidence)
	if evErr != nil {
		errs = append(errs, ValidationError{File: source, Field: "evidence", Message: evErr.Error()})
	}
	plan.Evidence = evidence

	if raw.Weeks == nil {
		errs = append(errs, ValidationError{File: source, Field: "weeks", Message: "is required"})
	} else if *raw.Weeks < 0 {
		errs = append(errs, ValidationError{File: source, Field: "weeks", Message: "must be >= 0"})
	} else {
		plan.Weeks = *raw.Weeks
	}

	goalIDs := make(map[string]struct{})
	for idx, rawG := range raw.Goals {
		path := fmt.Sprintf("goals[%d]", idx)
		goal, goalErrs := validateGoal(rawG, path, source)
		errs = append(errs, goalErrs...)

		if goal.ID != "" {
			if _, exists := goalIDs[goal.ID]; exists {
				errs = append(errs, ValidationError{
					File:    source,
					Field:   path + ".goal_id",
					Message: fmt.Sprintf("duplicate goal_id %q", goal.ID),
				})
			} else {
				goalIDs[goal.ID] = struct{}{}
			}
		}
		plan.Goals = append(plan.Goals, goal)
	}

	if len(errs) > 0 {
		return Plan{}, errs
	}
	return plan, nil
}

func validateGoal(raw rawGoal, path, source string) (Goal, ValidationErrors) {
	var errs ValidationErrors

	goal := Goal{
		ID:   strings.TrimSpace(raw.ID),
		Name: strings.TrimSpace(raw.Name),
	}
	if goal.ID == "" {
		errs = append(errs, ValidationError{File: source, Field: path + ".goal_id", Message: "is required"})
	}

	date, err := parseDate(raw.TargetDate)
	if err != nil {
		errs = append(errs, ValidationError{File: source, Field: path + ".target_date", Message: err.Error()})
	}
	goal.TargetDate = date

	// Out-of-range priority is cosmetic; clamp instead of rejecting.
	goal.Priority = priorityDefault
	if raw.Priority != nil {
		goal.Priority = clampInt(*raw.Priority, priorityMin, priorityMax)
	}

	for tIdx, rawT := range raw.Targets {
		tPath := fmt.Sprintf("%s.targets[%d]", path, tIdx)
		target, tErrs := validateTarget(rawT, tPath, source)
		errs = append(errs, tErrs...)
		goal.Targets = append(goal.Targets, target)
	}

	return goal, errs
}

func validateTarget(raw rawTarget, path, source string) (Target, ValidationErrors) {
	var errs ValidationErrors
	fail := func(field, msg string) {
		errs = append(errs, ValidationError{File: source, Field: path + "." + field, Message: msg})
	}
	requirePositive := func(field string, v *float64) float64 {
		if v == nil {
			fail(field, "is required")
			return 0
		}
		if *v <= 0 {
			fail(field, "must be > 0")
			return 0
		}
		return *v
	}

	switch TargetType(raw.Type) {
	case TargetRacePerformance:
		race := &RaceTarget{
			DistanceM:        requirePositive("distance_m", raw.DistanceM),
			TargetTimeS:      requirePositive("target_time_s", raw.TargetTimeS),
			ActivityCategory: parseActivity(raw.ActivityCategory),
		}
		return Target{Type: TargetRacePerformance, Race: race}, errs
	case TargetPaceThreshold:
		pace := &PaceTarget{
			TargetSpeedMPS: requirePositive("target_speed_mps", raw.TargetSpeedMPS),
			TestDurationS:  requirePositive("test_duration_s", raw.TestDurationS),
		}
		return Target{Type: TargetPaceThreshold, Pace: pace}, errs
	case TargetPowerThreshold:
		power := &PowerTarget{
			TargetWatts:   requirePositive("target_watts", raw.TargetWatts),
			TestDurationS: requirePositive("test_duration_s", raw.TestDurationS),
		}
		return Target{Type: TargetPowerThreshold, Power: power}, errs
	case TargetHRThreshold:
		hr := &HRTarget{
			TargetLTHRBPM: requirePositive("target_lthr_bpm", raw.TargetLTHRBPM),
		}
		return Target{Type: TargetHRThreshold, HR: hr}, errs
	default:
		fail("target_type", fmt.Sprintf("unknown target_type %q", raw.Type))
		return Target{}, errs
	}
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("is required (YYYY-MM-DD)")
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func parseEvidence(s string) (EvidenceState, error) {
	switch EvidenceState(strings.TrimSpace(s)) {
	case EvidenceNone, "":
		return EvidenceNone, nil
	case EvidenceSparse:
		return EvidenceSparse, nil
	case EvidenceStale:
		return EvidenceStale, nil
	case EvidenceRich:
		return EvidenceRich, nil
	default:
		return EvidenceNone, fmt.Errorf("unknown evidence state %q", s)
	}
}

func parseActivity(s string) ActivityCategory {
	switch ActivityCategory(strings.TrimSpace(s)) {
	case ActivityRun:
		return ActivityRun
	case ActivityBike:
		return ActivityBike
	case ActivitySwim:
		return ActivitySwim
	default:
		return ActivityOther
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
