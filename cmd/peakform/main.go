package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"peakform/internal/calibration"
	"peakform/internal/engine"
	"peakform/internal/goals"
	"peakform/internal/runstore"
	"peakform/internal/workspace"
)

const appName = "peakform"

const artifactSchemaVersion = 1

func main() {
	flag.String("workspace", "", "Path to workspace root")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s: training-load projection and readiness scoring\n\n", appName)
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [command] [flags]\n\n", appName)
		fmt.Fprintln(os.Stderr, "Commands:")
		fmt.Fprintln(os.Stderr, "  init      Initialize a new workspace")
		fmt.Fprintln(os.Stderr, "  project   Run a projection and persist it")
		fmt.Fprintln(os.Stderr, "  preview   Run a projection without persisting")
		fmt.Fprintln(os.Stderr, "  anchor    Resolve the no-history starting prior")
		fmt.Fprintln(os.Stderr, "  recovery  Show event recovery profiles per goal")
		fmt.Fprintln(os.Stderr, "  runs      List recorded projection runs")
		fmt.Fprintln(os.Stderr, "  help      Show this help")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	workspacePath, remaining, err := extractWorkspaceFlag(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	args := remaining
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		flag.Usage()
		return
	}

	var runErr error
	switch args[0] {
	case "init":
		runErr = runInit(args[1:], workspacePath)
	case "project":
		runErr = runProject(args[1:], workspacePath, true)
	case "preview":
		runErr = runProject(args[1:], workspacePath, false)
	case "anchor":
		runErr = runAnchor(args[1:], workspacePath)
	case "recovery":
		runErr = runRecovery(args[1:], workspacePath)
	case "runs":
		runErr = runRuns(args[1:], workspacePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", args[0])
		flag.Usage()
		os.Exit(1)
	}
	if runErr != nil {
		fmt.Fprintln(os.Stderr, runErr)
		os.Exit(1)
	}
}

func extractWorkspaceFlag(args []string) (string, []string, error) {
	var workspacePath string
	remaining := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--workspace" {
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("--workspace requires a value")
			}
			workspacePath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--workspace=") {
			workspacePath = strings.TrimPrefix(arg, "--workspace=")
			continue
		}
		remaining = append(remaining, arg)
	}
	return workspacePath, remaining, nil
}

func resolveWorkspace(workspacePath string) (*workspace.Workspace, error) {
	if strings.TrimSpace(workspacePath) == "" {
		workspacePath = "."
	}
	return workspace.Resolve(workspacePath)
}

// projectionArgs is everything BuildDeterministicProjection needs, built once
// and shared verbatim by the preview and create paths. Output parity between
// the two commands depends on this being the only place the arguments are
// constructed.
type projectionArgs struct {
	Plan      *goals.Plan
	Calib     calibration.Config
	Controls  engine.EffectiveControls
	Start     engine.StartState
	StartDate time.Time
	Weeks     int
	Anchor    *engine.AnchorResult
}

func buildProjectionArgs(ws *workspace.Workspace) (*projectionArgs, error) {
	plan, err := goals.LoadFromFile(ws.PlanPath)
	if err != nil {
		return nil, err
	}
	calib, err := calibration.Load(ws.CalibrationPath)
	if err != nil {
		return nil, err
	}

	controls := engine.ResolveEffectiveControls(engine.OptimizationProfile(plan.Profile), engine.AdvancedControls{}, calib)

	start := engine.StartState{
		CTL:      plan.StartCTL,
		ATL:      plan.StartATL,
		Evidence: plan.Evidence,
	}

	var anchor *engine.AnchorResult
	if plan.Evidence == goals.EvidenceNone && plan.StartCTL == 0 {
		resolved := resolvePlanAnchor(plan, calib)
		anchor = &resolved
		start.CTL = resolved.StartCTL
		start.ATL = resolved.StartATL
	}

	return &projectionArgs{
		Plan:      plan,
		Calib:     calib,
		Controls:  controls,
		Start:     start,
		StartDate: plan.CurrentDate,
		Weeks:     plan.Weeks,
		Anchor:    anchor,
	}, nil
}

func resolvePlanAnchor(plan *goals.Plan, calib calibration.Config) engine.AnchorResult {
	ctx := engine.AnchorContext{DemandTier: engine.DemandLow}
	if primary, ok := plan.PrimaryGoal(); ok {
		longest := 0.0
		for _, t := range primary.Targets {
			if d := t.EventDurationS(); d > longest {
				longest = d
			}
		}
		ctx.DemandTier = engine.DemandTierForDuration(longest)
		days := int(primary.TargetDate.Sub(plan.CurrentDate).Hours() / 24)
		ctx.WeeksUntilEvent = days / 7
	}
	return engine.ResolveNoHistoryAnchor(ctx, calib)
}

// projectionArtifact is the schema-versioned JSON written for each run.
type projectionArtifact struct {
	SchemaVersion int                      `json:"schema_version"`
	AsOf          string                   `json:"as_of"`
	PlanPath      string                   `json:"plan_path"`
	Mode          string                   `json:"mode"`
	Controls      engine.EffectiveControls `json:"controls"`
	Anchor        *engine.AnchorResult     `json:"anchor,omitempty"`
	Result        engine.ProjectionResult  `json:"result"`
}

func runProject(args []string, workspacePath string, persist bool) error {
	name := "preview"
	if persist {
		name = "project"
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}

	built, err := buildProjectionArgs(ws)
	if err != nil {
		return err
	}

	result, err := engine.BuildDeterministicProjection(built.Plan.Goals, built.Start, built.StartDate, built.Weeks, built.Controls, built.Calib)
	if err != nil {
		return err
	}

	asOf := built.StartDate.Format("2006-01-02")
	mode := "preview"
	if persist {
		mode = "create"
	}
	artifact := projectionArtifact{
		SchemaVersion: artifactSchemaVersion,
		AsOf:          asOf,
		PlanPath:      ws.PlanPath,
		Mode:          mode,
		Controls:      built.Controls,
		Anchor:        built.Anchor,
		Result:        result,
	}

	if !persist {
		return printJSON(artifact)
	}

	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	artifactPath := ws.ProjectionArtifactPath(asOf)
	if err := writeJSONFile(artifactPath, artifact); err != nil {
		return err
	}

	store, err := runstore.Open(ws.RunDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runID, err := store.RecordRun(
		ws.PlanPath, mode,
		result.CompositeReadiness.ReadinessScore,
		result.CompositeReadiness.ReadinessConfidence,
		string(result.CompositeReadiness.EnvelopeState),
		artifact,
	)
	if err != nil {
		return err
	}
	if err := store.LogEvent(runID, "projection_committed", result.Feasibility); err != nil {
		return err
	}

	summary := goals.ProjectionSummary{
		RunID:               runID,
		AsOf:                asOf,
		ReadinessScore:      result.CompositeReadiness.ReadinessScore,
		ReadinessConfidence: result.CompositeReadiness.ReadinessConfidence,
		EnvelopeState:       string(result.CompositeReadiness.EnvelopeState),
		RationaleCodes:      result.CompositeReadiness.RationaleCodes,
		GoalReadiness:       goalReadinessByID(built.Plan.Goals, result),
	}
	if _, err := goals.WriteProjectionSummary(ws.PlanPath, summary, false); err != nil {
		return err
	}

	fmt.Printf("Projection committed: run %s\n", runID)
	fmt.Printf("  readiness %.2f (confidence %.2f), envelope %s\n",
		result.CompositeReadiness.ReadinessScore,
		result.CompositeReadiness.ReadinessConfidence,
		result.CompositeReadiness.EnvelopeState)
	fmt.Printf("  artifact: %s\n", artifactPath)
	return nil
}

func goalReadinessByID(goalList []goals.Goal, result engine.ProjectionResult) map[string]float64 {
	out := make(map[string]float64)
	for _, goal := range goalList {
		for i, p := range result.Points {
			if sameDate(p.Date, goal.TargetDate) {
				out[goal.ID] = result.ReadinessScores[i]
				break
			}
		}
	}
	return out
}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func runAnchor(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("anchor", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	hours := fs.Float64("hours", -1, "Declared weekly availability in hours (omit if unknown)")
	signalsFlag := fs.String("signals", "", "Comma-separated fitness signals")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	plan, err := goals.LoadFromFile(ws.PlanPath)
	if err != nil {
		return err
	}
	calib, err := calibration.Load(ws.CalibrationPath)
	if err != nil {
		return err
	}

	ctx := engine.AnchorContext{DemandTier: engine.DemandLow}
	if primary, ok := plan.PrimaryGoal(); ok {
		longest := 0.0
		for _, t := range primary.Targets {
			if d := t.EventDurationS(); d > longest {
				longest = d
			}
		}
		ctx.DemandTier = engine.DemandTierForDuration(longest)
		days := int(primary.TargetDate.Sub(plan.CurrentDate).Hours() / 24)
		ctx.WeeksUntilEvent = days / 7
	}
	if *hours >= 0 {
		ctx.WeeklyAvailabilityHours = hours
	}
	for _, s := range strings.Split(*signalsFlag, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			ctx.Signals = append(ctx.Signals, engine.FitnessSignal(s))
		}
	}

	return printJSON(engine.ResolveNoHistoryAnchor(ctx, calib))
}

func runRecovery(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("recovery", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	plan, err := goals.LoadFromFile(ws.PlanPath)
	if err != nil {
		return err
	}
	calib, err := calibration.Load(ws.CalibrationPath)
	if err != nil {
		return err
	}

	type goalRecovery struct {
		GoalID   string                        `json:"goal_id"`
		Date     string                        `json:"date"`
		Profiles []engine.EventRecoveryProfile `json:"profiles"`
	}
	var out []goalRecovery
	for _, goal := range plan.Goals {
		entry := goalRecovery{GoalID: goal.ID, Date: goal.TargetDate.Format("2006-01-02")}
		for _, target := range goal.Targets {
			entry.Profiles = append(entry.Profiles, engine.ComputeEventRecoveryProfile(target, plan.StartCTL, plan.StartATL, calib))
		}
		out = append(out, entry)
	}
	return printJSON(out)
}

func runRuns(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 20, "Maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ws, err := resolveWorkspace(workspacePath)
	if err != nil {
		return err
	}
	store, err := runstore.Open(ws.RunDBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.ListRuns(*limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No projection runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  %-7s  readiness %.2f  envelope %s\n",
			run.CreatedAt.Format("2006-01-02 15:04"), run.ID, run.Mode, run.ReadinessScore, run.EnvelopeState)
	}
	return nil
}

const samplePlan = `athlete: New Athlete
current_date: 2026-01-05
start_ctl: 35
start_atl: 35
evidence: sparse
weeks: 16
profile: balanced
goals:
  - goal_id: GOAL-1
    name: Spring marathon
    target_date: 2026-04-26
    priority: 8
    targets:
      - target_type: race_performance
        distance_m: 42195
        target_time_s: 12600
        activity_category: run
`

func runInit(args []string, workspacePath string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	root, err := workspace.ResolveRoot(defaultString(workspacePath, "."))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}
	ws, err := workspace.Resolve(root)
	if err != nil {
		return err
	}
	if err := ws.EnsureDirs(); err != nil {
		return err
	}

	if _, err := os.Stat(ws.PlanPath); os.IsNotExist(err) {
		if writeErr := os.WriteFile(ws.PlanPath, []byte(samplePlan), 0o644); writeErr != nil {
			return fmt.Errorf("write sample plan: %w", writeErr)
		}
		fmt.Printf("Wrote sample plan: %s\n", ws.PlanPath)
	}

	fmt.Printf("Workspace initialized at %s\n", root)
	return nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func writeJSONFile(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
