package calibration

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SchemaVersion identifies the calibration schema this build understands.
const SchemaVersion = 1

// Config carries every numeric constant the projection and readiness engine
// uses. The engine never reads package-level globals; callers pass a Config
// explicitly so tests can override any constant without cross-test state.
type Config struct {
	SchemaVersion int `yaml:"schema_version"`

	Dynamics  DynamicsConfig  `yaml:"dynamics"`
	Safety    SafetyConfig    `yaml:"safety"`
	Profiles  ProfilesConfig  `yaml:"profiles"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Anchor    AnchorConfig    `yaml:"anchor"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Envelope  EnvelopeConfig  `yaml:"envelope"`
	Composite CompositeConfig `yaml:"composite"`
}

// DynamicsConfig holds the exponentially-weighted load-response constants.
type DynamicsConfig struct {
	CTLTimeConstantDays float64 `yaml:"ctl_time_constant_days"`
	ATLTimeConstantDays float64 `yaml:"atl_time_constant_days"`
}

// SafetyConfig holds schema-wide hard limits no profile may exceed.
type SafetyConfig struct {
	MaxWeeklyTSSRampPct float64 `yaml:"max_weekly_tss_ramp_pct"`
	MaxCTLRampPerWeek   float64 `yaml:"max_ctl_ramp_per_week"`
	LookaheadWeeksMin   int     `yaml:"lookahead_weeks_min"`
	LookaheadWeeksMax   int     `yaml:"lookahead_weeks_max"`
	CandidateStepsMin   int     `yaml:"candidate_steps_min"`
	CandidateStepsMax   int     `yaml:"candidate_steps_max"`
}

// ProfileConfig holds one optimization profile's defaults and ranges.
// Ramp and weight values are lerped between their conservative and aggressive
// ends using the resolved ambition / risk tolerance.
type ProfileConfig struct {
	Ambition          float64 `yaml:"ambition"`
	RiskTolerance     float64 `yaml:"risk_tolerance"`
	Curvature         float64 `yaml:"curvature"`
	CurvatureStrength float64 `yaml:"curvature_strength"`

	RampPctConservative float64 `yaml:"ramp_pct_conservative"`
	RampPctAggressive   float64 `yaml:"ramp_pct_aggressive"`
	CTLRampConservative float64 `yaml:"ctl_ramp_conservative"`
	CTLRampAggressive   float64 `yaml:"ctl_ramp_aggressive"`

	LookaheadWeeksMax int `yaml:"lookahead_weeks_max"`
	CandidateStepsMax int `yaml:"candidate_steps_max"`
}

// ProfilesConfig maps the three optimization profiles plus the shared
// objective-weight multiplier ranges.
type ProfilesConfig struct {
	OutcomeFirst ProfileConfig `yaml:"outcome_first"`
	Balanced     ProfileConfig `yaml:"balanced"`
	Sustainable  ProfileConfig `yaml:"sustainable"`

	PreparednessConservative float64 `yaml:"preparedness_conservative"`
	PreparednessAggressive   float64 `yaml:"preparedness_aggressive"`
	RiskConservative         float64 `yaml:"risk_conservative"`
	RiskAggressive           float64 `yaml:"risk_aggressive"`
	VolatilityConservative   float64 `yaml:"volatility_conservative"`
	VolatilityAggressive     float64 `yaml:"volatility_aggressive"`
	ChurnConservative        float64 `yaml:"churn_conservative"`
	ChurnAggressive          float64 `yaml:"churn_aggressive"`
	CurvatureWeightMin       float64 `yaml:"curvature_weight_min"`
	CurvatureWeightMax       float64 `yaml:"curvature_weight_max"`
}

// OptimizerConfig holds the weekly-load search objective constants.
type OptimizerConfig struct {
	RiskATLRatio           float64 `yaml:"risk_atl_ratio"`
	RiskScale              float64 `yaml:"risk_scale"`
	VolatilityScale        float64 `yaml:"volatility_scale"`
	ChurnScale             float64 `yaml:"churn_scale"`
	CurvatureTargetScale   float64 `yaml:"curvature_target_scale"`
	CurvatureMismatchScale float64 `yaml:"curvature_mismatch_scale"`

	// Phase-specific multipliers on the curvature-smoothness term.
	PhaseFactorRamp     float64 `yaml:"phase_factor_ramp"`
	PhaseFactorDeload   float64 `yaml:"phase_factor_deload"`
	PhaseFactorTaper    float64 `yaml:"phase_factor_taper"`
	PhaseFactorEvent    float64 `yaml:"phase_factor_event"`
	PhaseFactorRecovery float64 `yaml:"phase_factor_recovery"`

	DeloadEveryWeeks int `yaml:"deload_every_weeks"`
	TaperWindowDays  int `yaml:"taper_window_days"`

	// Lattice top when there is no previous week to ramp from.
	BootstrapWeeklyLoad float64 `yaml:"bootstrap_weekly_load"`
}

// AnchorConfig holds the no-history starting-fitness prior constants.
type AnchorConfig struct {
	// CTL floor lookup, fitness level x goal demand tier.
	FloorWeakLow      float64 `yaml:"floor_weak_low"`
	FloorWeakMedium   float64 `yaml:"floor_weak_medium"`
	FloorWeakHigh     float64 `yaml:"floor_weak_high"`
	FloorStrongLow    float64 `yaml:"floor_strong_low"`
	FloorStrongMedium float64 `yaml:"floor_strong_medium"`
	FloorStrongHigh   float64 `yaml:"floor_strong_high"`

	StrongSignalCount int `yaml:"strong_signal_count"`

	// Conservative intensity assumption used when no model is supplied.
	FallbackTSSPerHour float64 `yaml:"fallback_tss_per_hour"`

	// Timeline feasibility thresholds in weeks, per demand tier.
	FullWeeksLow       int `yaml:"full_weeks_low"`
	FullWeeksMedium    int `yaml:"full_weeks_medium"`
	FullWeeksHigh      int `yaml:"full_weeks_high"`
	LimitedWeeksLow    int `yaml:"limited_weeks_low"`
	LimitedWeeksMedium int `yaml:"limited_weeks_medium"`
	LimitedWeeksHigh   int `yaml:"limited_weeks_high"`
}

// RecoveryConfig holds the event recovery model constants.
type RecoveryConfig struct {
	RaceBaseDaysPerHour float64 `yaml:"race_base_days_per_hour"`
	RaceBaseDaysMin     float64 `yaml:"race_base_days_min"`
	RaceBaseDaysMax     float64 `yaml:"race_base_days_max"`
	FunctionalFraction  float64 `yaml:"functional_fraction"`
	ATLSpikePerHour     float64 `yaml:"atl_spike_per_hour"`
	ATLSpikeMax         float64 `yaml:"atl_spike_max"`

	ThresholdBaseDays        float64 `yaml:"threshold_base_days"`
	ThresholdDaysPerTestHour float64 `yaml:"threshold_days_per_test_hour"`
	ThresholdIntensity       float64 `yaml:"threshold_intensity"`
	ThresholdSpikeFactor     float64 `yaml:"threshold_spike_factor"`

	HRFullDays    float64 `yaml:"hr_full_days"`
	HRFunctional  float64 `yaml:"hr_functional_days"`
	HRIntensity   float64 `yaml:"hr_intensity"`
	HRSpikeFactor float64 `yaml:"hr_spike_factor"`

	PenaltyMax          float64 `yaml:"penalty_max"`
	PenaltyBaseFraction float64 `yaml:"penalty_base_fraction"`
	ATLOverloadScale    float64 `yaml:"atl_overload_scale"`
}

// ReadinessConfig holds the daily readiness scoring constants.
type ReadinessConfig struct {
	FitnessGrowthExponent float64 `yaml:"fitness_growth_exponent"`
	FitnessGrowthWeight   float64 `yaml:"fitness_growth_weight"`

	FormToleranceTSB     float64 `yaml:"form_tolerance_tsb"`
	TargetTSBShort       float64 `yaml:"target_tsb_short"`
	TargetTSBLong        float64 `yaml:"target_tsb_long"`
	FormWeightBase       float64 `yaml:"form_weight_base"`
	FormWeightNearGoal   float64 `yaml:"form_weight_near_goal"`
	GoalProximityDays    float64 `yaml:"goal_proximity_days"`
	FatigueOverloadScale float64 `yaml:"fatigue_overload_scale"`

	SynergyBonus       float64 `yaml:"synergy_bonus"`
	SynergyFitnessGate float64 `yaml:"synergy_fitness_gate"`
	SynergyFormGate    float64 `yaml:"synergy_form_gate"`

	TaperDaysMin         float64 `yaml:"taper_days_min"`
	TaperDaysMax         float64 `yaml:"taper_days_max"`
	PeakRecoveryFraction float64 `yaml:"peak_recovery_fraction"`

	SmoothingPasses    int     `yaml:"smoothing_passes"`
	SmoothingEpsilon   float64 `yaml:"smoothing_epsilon"`
	PeakDecayPerDay    float64 `yaml:"peak_decay_per_day"`
	MaxDailyStep       float64 `yaml:"max_daily_step"`
	AnchorEaseExponent float64 `yaml:"anchor_ease_exponent"`
}

// EnvelopeConfig holds the weekly capacity envelope constants.
type EnvelopeConfig struct {
	GrowthPerWeek     float64 `yaml:"growth_per_week"`
	GrowthCap         float64 `yaml:"growth_cap"`
	HalfWidthFraction float64 `yaml:"half_width_fraction"`
	RampLimitPct      float64 `yaml:"ramp_limit_pct"`

	OvershootWeight  float64 `yaml:"overshoot_weight"`
	UndershootWeight float64 `yaml:"undershoot_weight"`
	OverRampWeight   float64 `yaml:"over_ramp_weight"`
	LateWeekEmphasis float64 `yaml:"late_week_emphasis"`

	InsideThreshold float64 `yaml:"inside_threshold"`
	EdgeThreshold   float64 `yaml:"edge_threshold"`

	EvidenceMultiplierNone   float64 `yaml:"evidence_multiplier_none"`
	EvidenceMultiplierSparse float64 `yaml:"evidence_multiplier_sparse"`
	EvidenceMultiplierStale  float64 `yaml:"evidence_multiplier_stale"`
	EvidenceMultiplierRich   float64 `yaml:"evidence_multiplier_rich"`
}

// CompositeConfig holds the plan-level readiness blend constants.
type CompositeConfig struct {
	AttainmentWeight float64 `yaml:"attainment_weight"`
	EnvelopeWeight   float64 `yaml:"envelope_weight"`
	DurabilityWeight float64 `yaml:"durability_weight"`
	EvidenceWeight   float64 `yaml:"evidence_weight"`

	EvidenceScoreNone   float64 `yaml:"evidence_score_none"`
	EvidenceScoreSparse float64 `yaml:"evidence_score_sparse"`
	EvidenceScoreStale  float64 `yaml:"evidence_score_stale"`
	EvidenceScoreRich   float64 `yaml:"evidence_score_rich"`

	ConfidenceCapNone   float64 `yaml:"confidence_cap_none"`
	ConfidenceCapSparse float64 `yaml:"confidence_cap_sparse"`
	ConfidenceCapStale  float64 `yaml:"confidence_cap_stale"`
	ConfidenceCapRich   float64 `yaml:"confidence_cap_rich"`

	MonotonyPenaltyScale float64 `yaml:"monotony_penalty_scale"`
	MonotonyThreshold    float64 `yaml:"monotony_threshold"`
	StrainPenaltyScale   float64 `yaml:"strain_penalty_scale"`
	StrainThreshold      float64 `yaml:"strain_threshold"`
	DeloadDebtWeeks      int     `yaml:"deload_debt_weeks"`
	DeloadDebtPenalty    float64 `yaml:"deload_debt_penalty"`
	DeloadDropFraction   float64 `yaml:"deload_drop_fraction"`
}

// Default returns the documented calibration defaults.
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Dynamics: DynamicsConfig{
			CTLTimeConstantDays: 42,
			ATLTimeConstantDays: 7,
		},
		Safety: SafetyConfig{
			MaxWeeklyTSSRampPct: 0.25,
			MaxCTLRampPerWeek:   8,
			LookaheadWeeksMin:   2,
			LookaheadWeeksMax:   8,
			CandidateStepsMin:   3,
			CandidateStepsMax:   11,
		},
		Profiles: ProfilesConfig{
			OutcomeFirst: ProfileConfig{
				Ambition:            0.8,
				RiskTolerance:       0.7,
				Curvature:           0.2,
				CurvatureStrength:   0.5,
				RampPctConservative: 0.10,
				RampPctAggressive:   0.22,
				CTLRampConservative: 4,
				CTLRampAggressive:   7,
				LookaheadWeeksMax:   6,
				CandidateStepsMax:   9,
			},
			Balanced: ProfileConfig{
				Ambition:            0.55,
				RiskTolerance:       0.5,
				Curvature:           0,
				CurvatureStrength:   0.5,
				RampPctConservative: 0.08,
				RampPctAggressive:   0.18,
				CTLRampConservative: 3,
				CTLRampAggressive:   6,
				LookaheadWeeksMax:   5,
				CandidateStepsMax:   7,
			},
			Sustainable: ProfileConfig{
				Ambition:            0.35,
				RiskTolerance:       0.3,
				Curvature:           -0.2,
				CurvatureStrength:   0.6,
				RampPctConservative: 0.06,
				RampPctAggressive:   0.14,
				CTLRampConservative: 2,
				CTLRampAggressive:   5,
				LookaheadWeeksMax:   4,
				CandidateStepsMax:   5,
			},
			PreparednessConservative: 0.8,
			PreparednessAggressive:   1.4,
			RiskConservative:         1.3,
			RiskAggressive:           0.7,
			VolatilityConservative:   1.2,
			VolatilityAggressive:     0.8,
			ChurnConservative:        1.1,
			ChurnAggressive:          0.9,
			CurvatureWeightMin:       0.2,
			CurvatureWeightMax:       1.0,
		},
		Optimizer: OptimizerConfig{
			RiskATLRatio:           1.1,
			RiskScale:              100,
			VolatilityScale:        100,
			ChurnScale:             100,
			CurvatureTargetScale:   0.05,
			CurvatureMismatchScale: 400,
			PhaseFactorRamp:        1.0,
			PhaseFactorDeload:      0.6,
			PhaseFactorTaper:       1.2,
			PhaseFactorEvent:       1.5,
			PhaseFactorRecovery:    0.8,
			DeloadEveryWeeks:       4,
			TaperWindowDays:        14,
			BootstrapWeeklyLoad:    120,
		},
		Anchor: AnchorConfig{
			FloorWeakLow:       25,
			FloorWeakMedium:    32,
			FloorWeakHigh:      40,
			FloorStrongLow:     35,
			FloorStrongMedium:  45,
			FloorStrongHigh:    55,
			StrongSignalCount:  2,
			FallbackTSSPerHour: 50,
			FullWeeksLow:       8,
			FullWeeksMedium:    12,
			FullWeeksHigh:      16,
			LimitedWeeksLow:    5,
			LimitedWeeksMedium: 8,
			LimitedWeeksHigh:   10,
		},
		Recovery: RecoveryConfig{
			RaceBaseDaysPerHour:      3.5,
			RaceBaseDaysMin:          2,
			RaceBaseDaysMax:          28,
			FunctionalFraction:       0.4,
			ATLSpikePerHour:          0.15,
			ATLSpikeMax:              2.5,
			ThresholdBaseDays:        3,
			ThresholdDaysPerTestHour: 2,
			ThresholdIntensity:       75,
			ThresholdSpikeFactor:     1.2,
			HRFullDays:               3,
			HRFunctional:             1,
			HRIntensity:              65,
			HRSpikeFactor:            1.1,
			PenaltyMax:               60,
			PenaltyBaseFraction:      0.5,
			ATLOverloadScale:         30,
		},
		Readiness: ReadinessConfig{
			FitnessGrowthExponent: 1.35,
			FitnessGrowthWeight:   0.6,
			FormToleranceTSB:      18,
			TargetTSBShort:        15,
			TargetTSBLong:         5,
			FormWeightBase:        0.2,
			FormWeightNearGoal:    0.45,
			GoalProximityDays:     56,
			FatigueOverloadScale:  1.5,
			SynergyBonus:          0.06,
			SynergyFitnessGate:    0.85,
			SynergyFormGate:       0.7,
			TaperDaysMin:          5,
			TaperDaysMax:          8,
			PeakRecoveryFraction:  0.6,
			SmoothingPasses:       3,
			SmoothingEpsilon:      0.05,
			PeakDecayPerDay:       0.5,
			MaxDailyStep:          6,
			AnchorEaseExponent:    3,
		},
		Envelope: EnvelopeConfig{
			GrowthPerWeek:            0.04,
			GrowthCap:                1.6,
			HalfWidthFraction:        0.35,
			RampLimitPct:             0.18,
			OvershootWeight:          0.55,
			UndershootWeight:         0.20,
			OverRampWeight:           0.25,
			LateWeekEmphasis:         0.5,
			InsideThreshold:          85,
			EdgeThreshold:            65,
			EvidenceMultiplierNone:   0.85,
			EvidenceMultiplierSparse: 0.95,
			EvidenceMultiplierStale:  0.90,
			EvidenceMultiplierRich:   1.10,
		},
		Composite: CompositeConfig{
			AttainmentWeight:     0.45,
			EnvelopeWeight:       0.30,
			DurabilityWeight:     0.15,
			EvidenceWeight:       0.10,
			EvidenceScoreNone:    30,
			EvidenceScoreSparse:  55,
			EvidenceScoreStale:   45,
			EvidenceScoreRich:    90,
			ConfidenceCapNone:    58,
			ConfidenceCapSparse:  72,
			ConfidenceCapStale:   68,
			ConfidenceCapRich:    92,
			MonotonyPenaltyScale: 10,
			MonotonyThreshold:    7.5,
			StrainPenaltyScale:   0.01,
			StrainThreshold:      2600,
			DeloadDebtWeeks:      3,
			DeloadDebtPenalty:    5,
			DeloadDropFraction:   0.9,
		},
	}
}

// Load reads a partial calibration override from a YAML file and applies it
// on top of the defaults. A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read calibration: %w", err)
	}
	return Merge(cfg, data, path)
}

// Merge applies a YAML override document on top of base. Unknown fields are
// rejected so a typoed constant name cannot silently fall back to the default.
func Merge(base Config, data []byte, source string) (Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	cfg := base
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse calibration %s: %w", source, err)
	}
	if cfg.SchemaVersion != SchemaVersion {
		return Config{}, fmt.Errorf("calibration %s: schema_version %d not supported (want %d)", source, cfg.SchemaVersion, SchemaVersion)
	}
	return cfg, nil
}
