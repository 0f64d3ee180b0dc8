package engine

import (
	"math"

	"peakform/internal/calibration"
)

// OptimizationProfile selects a family of safety bounds and optimizer weights.
type OptimizationProfile string

const (
	ProfileOutcomeFirst OptimizationProfile = "outcome_first"
	ProfileBalanced     OptimizationProfile = "balanced"
	ProfileSustainable  OptimizationProfile = "sustainable"
)

// ControlMode selects between profile defaults and user-tuned controls.
type ControlMode string

const (
	ModeSimple   ControlMode = "simple"
	ModeAdvanced ControlMode = "advanced"
)

// AdvancedControls are the optional user-facing tuning knobs. In simple mode
// they are ignored and the profile defaults apply.
type AdvancedControls struct {
	Mode              ControlMode
	Ambition          float64
	RiskTolerance     float64
	Curvature         float64
	CurvatureStrength float64
}

// EffectiveControls are the concrete numeric bounds the optimizer runs under.
type EffectiveControls struct {
	Profile OptimizationProfile `json:"profile"`

	MaxWeeklyTSSRampPct float64 `json:"max_weekly_tss_ramp_pct"`
	MaxCTLRampPerWeek   float64 `json:"max_ctl_ramp_per_week"`

	PreparednessWeight float64 `json:"preparedness_weight"`
	RiskWeight         float64 `json:"risk_weight"`
	VolatilityWeight   float64 `json:"volatility_weight"`
	ChurnWeight        float64 `json:"churn_weight"`

	LookaheadWeeks int `json:"lookahead_weeks"`
	CandidateSteps int `json:"candidate_steps"`

	CurvatureTarget   float64 `json:"curvature_target"`
	CurvatureStrength float64 `json:"curvature_strength"`
	CurvatureWeight   float64 `json:"curvature_weight"`
}

// ResolveEffectiveControls normalizes a profile and optional advanced controls
// into concrete bounds. Malformed inputs clamp to the nearest valid value;
// the function never fails. All outputs are rounded to 3 decimals so the same
// inputs resolve to byte-identical controls everywhere.
func ResolveEffectiveControls(profile OptimizationProfile, advanced AdvancedControls, calib calibration.Config) EffectiveControls {
	pc := profileConfig(profile, calib)

	ambition := pc.Ambition
	risk := pc.RiskTolerance
	curvature := pc.Curvature
	curvatureStrength := pc.CurvatureStrength
	if advanced.Mode == ModeAdvanced {
		ambition = clamp01(advanced.Ambition)
		risk = clamp01(advanced.RiskTolerance)
		curvature = clampFloat(advanced.Curvature, -1, 1)
		curvatureStrength = clamp01(advanced.CurvatureStrength)
	}

	rampPct := lerp(pc.RampPctConservative, pc.RampPctAggressive, risk)
	ctlRamp := lerp(pc.CTLRampConservative, pc.CTLRampAggressive, risk)
	rampPct = math.Min(rampPct, calib.Safety.MaxWeeklyTSSRampPct)
	ctlRamp = math.Min(ctlRamp, calib.Safety.MaxCTLRampPerWeek)

	lookaheadMax := clampInt(pc.LookaheadWeeksMax, calib.Safety.LookaheadWeeksMin, calib.Safety.LookaheadWeeksMax)
	candidateMax := clampInt(pc.CandidateStepsMax, calib.Safety.CandidateStepsMin, calib.Safety.CandidateStepsMax)
	lookahead := clampInt(int(math.Round(lerp(float64(calib.Safety.LookaheadWeeksMin), float64(lookaheadMax), ambition))), calib.Safety.LookaheadWeeksMin, lookaheadMax)
	candidates := clampInt(int(math.Round(lerp(float64(calib.Safety.CandidateStepsMin), float64(candidateMax), ambition))), calib.Safety.CandidateStepsMin, candidateMax)

	p := calib.Profiles
	return EffectiveControls{
		Profile:             normalizeProfile(profile),
		MaxWeeklyTSSRampPct: round3(rampPct),
		MaxCTLRampPerWeek:   round3(ctlRamp),
		PreparednessWeight:  round3(lerp(p.PreparednessConservative, p.PreparednessAggressive, ambition)),
		RiskWeight:          round3(lerp(p.RiskConservative, p.RiskAggressive, risk)),
		VolatilityWeight:    round3(lerp(p.VolatilityConservative, p.VolatilityAggressive, risk)),
		ChurnWeight:         round3(lerp(p.ChurnConservative, p.ChurnAggressive, ambition)),
		LookaheadWeeks:      lookahead,
		CandidateSteps:      candidates,
		CurvatureTarget:     round3(curvature),
		CurvatureStrength:   round3(curvatureStrength),
		CurvatureWeight:     round3(lerp(p.CurvatureWeightMin, p.CurvatureWeightMax, curvatureStrength)),
	}
}

func normalizeProfile(profile OptimizationProfile) OptimizationProfile {
	switch profile {
	case ProfileOutcomeFirst, ProfileSustainable:
		return profile
	default:
		return ProfileBalanced
	}
}

func profileConfig(profile OptimizationProfile, calib calibration.Config) calibration.ProfileConfig {
	switch normalizeProfile(profile) {
	case ProfileOutcomeFirst:
		return calib.Profiles.OutcomeFirst
	case ProfileSustainable:
		return calib.Profiles.Sustainable
	default:
		return calib.Profiles.Balanced
	}
}

func lerp(low, high, t float64) float64 {
	return low + (high-low)*clamp01(t)
}

func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
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

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
