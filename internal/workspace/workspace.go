package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace defines workspace-relative paths for peakform operations.
type Workspace struct {
	Root            string
	PlanPath        string
	CalibrationPath string
	ArtifactsDir    string
	ProjectionsDir  string
	StateDir        string
	RunDBPath       string
}

// Resolve expands and validates the workspace root, ensuring it exists.
func Resolve(root string) (*Workspace, error) {
	abs, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root is not a directory: %s", abs)
	}
	return newWorkspace(abs), nil
}

// ResolveRoot resolves the workspace root without requiring it to exist.
func ResolveRoot(root string) (string, error) {
	return resolveRoot(root)
}

// EnsureDirs creates the standard workspace directories.
func (w *Workspace) EnsureDirs() error {
	if w == nil {
		return fmt.Errorf("workspace is nil")
	}
	dirs := []string{
		w.ArtifactsDir,
		w.ProjectionsDir,
		w.StateDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}
	return nil
}

// ProjectionArtifactPath returns the artifact path for a projection dated
// asOf (YYYY-MM-DD).
func (w *Workspace) ProjectionArtifactPath(asOf string) string {
	return filepath.Join(w.ProjectionsDir, asOf, "projection.json")
}

func newWorkspace(root string) *Workspace {
	return &Workspace{
		Root:            root,
		PlanPath:        filepath.Join(root, "plan.yml"),
		CalibrationPath: filepath.Join(root, "calibration.yml"),
		ArtifactsDir:    filepath.Join(root, "artifacts"),
		ProjectionsDir:  filepath.Join(root, "artifacts", "projections"),
		StateDir:        filepath.Join(root, "state"),
		RunDBPath:       filepath.Join(root, "state", "runs.db"),
	}
}

func resolveRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("workspace root is required")
	}
	expanded, err := expandHome(root)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return abs, nil
}

func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:]), nil
	}
	return "", fmt.Errorf("unsupported home expansion: %s", path)
}
