package playbook

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/types"
)

// ruleRecord mirrors one playbook entry on disk. Enabled is a pointer so an
// omitted flag defaults to true rather than to the zero value.
type ruleRecord struct {
	Name      string `yaml:"name"`
	Condition string `yaml:"condition"`
	Threshold int    `yaml:"threshold"`
	Action    string `yaml:"action"`
	Namespace string `yaml:"namespace"`
	Enabled   *bool  `yaml:"enabled"`
}

type playbookFile struct {
	Rules []ruleRecord `yaml:"rules"`
}

// Load reads the playbook at path and returns its rules in declaration
// order. A missing file falls back to Default with a warning; anything
// malformed is a configuration error and fails the load.
func Load(path string) ([]types.HealingRule, error) {
	log := logging.WithComponent("playbook")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("path", path).Msg("playbook not found, using default rules")
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read playbook %s: %w", path, err)
	}

	var pb playbookFile
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook %s: %w", path, err)
	}

	rules, err := buildRules(pb.Rules)
	if err != nil {
		return nil, err
	}

	log.Info().Int("rules", len(rules)).Str("path", path).Msg("loaded healing playbook")
	return rules, nil
}

func buildRules(records []ruleRecord) ([]types.HealingRule, error) {
	log := logging.WithComponent("playbook")

	rules := make([]types.HealingRule, 0, len(records))
	seen := make(map[string]bool)

	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("rule %d has no name", i)
		}
		if seen[rec.Name] {
			// Name uniqueness is expected but not enforced by the source.
			log.Warn().Str("rule", rec.Name).Msg("duplicate rule name in playbook")
		}
		seen[rec.Name] = true

		action, err := ParseAction(rec.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rec.Name, err)
		}

		namespace := rec.Namespace
		if namespace == "" {
			namespace = "default"
		}
		enabled := true
		if rec.Enabled != nil {
			enabled = *rec.Enabled
		}

		rules = append(rules, types.HealingRule{
			Name:      rec.Name,
			Condition: types.Condition(rec.Condition),
			Threshold: rec.Threshold,
			Action:    action,
			Namespace: namespace,
			Enabled:   enabled,
		})
	}

	return rules, nil
}

// ParseAction turns a compact playbook action string into its tagged form.
// Malformed specs are rejected here, at load time, never at dispatch time.
func ParseAction(s string) (types.ActionSpec, error) {
	switch {
	case s == string(types.ActionRestartPod):
		return types.ActionSpec{Kind: types.ActionRestartPod}, nil

	case strings.HasPrefix(s, string(types.ActionScaleDeployment)+":"):
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return types.ActionSpec{}, fmt.Errorf("malformed action %q: want scale_deployment:<name>:<replicas>", s)
		}
		if parts[1] == "" {
			return types.ActionSpec{}, fmt.Errorf("malformed action %q: empty deployment name", s)
		}
		replicas, err := strconv.ParseInt(parts[2], 10, 32)
		if err != nil {
			return types.ActionSpec{}, fmt.Errorf("malformed action %q: replicas %q is not an integer", s, parts[2])
		}
		if replicas < 0 {
			return types.ActionSpec{}, fmt.Errorf("malformed action %q: negative replica count", s)
		}
		return types.ActionSpec{
			Kind:       types.ActionScaleDeployment,
			Deployment: parts[1],
			Replicas:   int32(replicas),
		}, nil

	default:
		return types.ActionSpec{}, fmt.Errorf("unknown action %q", s)
	}
}

// Default returns the fallback rule set used when no playbook is present.
func Default() []types.HealingRule {
	return []types.HealingRule{
		{
			Name:      "restart-crashloop-pods",
			Condition: types.ConditionCrashLoopBackOff,
			Threshold: 0,
			Action:    types.ActionSpec{Kind: types.ActionRestartPod},
			Namespace: "default",
			Enabled:   true,
		},
	}
}
