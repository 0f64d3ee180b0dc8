package goals

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"
)

// ProjectionSummary is the plan-level result written back into the plan
// document after a committed projection run.
type ProjectionSummary struct {
	RunID               string             `yaml:"run_id"`
	AsOf                string             `yaml:"as_of"`
	ReadinessScore      float64            `yaml:"readiness_score"`
	ReadinessConfidence float64            `yaml:"readiness_confidence"`
	EnvelopeState       string             `yaml:"envelope_state"`
	RationaleCodes      []string           `yaml:"rationale_codes,omitempty"`
	GoalReadiness       map[string]float64 `yaml:"goal_readiness,omitempty"`
}

// WriteProjectionSummary replaces the plan document's projection block with
// the supplied summary. In dry-run mode the file is left untouched and a
// unified diff of the would-be change is returned instead.
func WriteProjectionSummary(path string, summary ProjectionSummary, dryRun bool) (string, error) {
	oldBytes, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(oldBytes, &doc); err != nil {
		return "", fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return "", fmt.Errorf("%s: plan document must be a YAML mapping", path)
	}

	summaryNode, err := summaryToNode(summary)
	if err != nil {
		return "", err
	}
	setMappingKey(doc.Content[0], "projection", summaryNode)

	var buf strings.Builder
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	newBytes := []byte(buf.String())

	if dryRun {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(oldBytes)),
			B:        difflib.SplitLines(string(newBytes)),
			FromFile: path,
			ToFile:   path + " (projected)",
			Context:  3,
		}
		diffText, diffErr := difflib.GetUnifiedDiffString(diff)
		if diffErr != nil {
			return "", fmt.Errorf("diff %s: %w", path, diffErr)
		}
		return diffText, nil
	}

	if err := os.WriteFile(path, newBytes, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return "", nil
}

func summaryToNode(summary ProjectionSummary) (*yaml.Node, error) {
	// Deterministic key order for goal_readiness regardless of map iteration.
	node := &yaml.Node{}
	if err := node.Encode(summary); err != nil {
		return nil, fmt.Errorf("encode projection summary: %w", err)
	}
	sortMappingKey(node, "goal_readiness")
	return node, nil
}

func setMappingKey(mapping *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = value
			return
		}
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		value,
	)
}

func sortMappingKey(mapping *yaml.Node, key string) {
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != key {
			continue
		}
		inner := mapping.Content[i+1]
		if inner.Kind != yaml.MappingNode {
			return
		}
		type pair struct{ k, v *yaml.Node }
		pairs := make([]pair, 0, len(inner.Content)/2)
		for j := 0; j+1 < len(inner.Content); j += 2 {
			pairs = append(pairs, pair{inner.Content[j], inner.Content[j+1]})
		}
		sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].k.Value < pairs[b].k.Value })
		inner.Content = inner.Content[:0]
		for _, p := range pairs {
			inner.Content = append(inner.Content, p.k, p.v)
		}
		return
	}
}
