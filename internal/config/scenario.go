package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"simkernel/internal/simerr"
)

// TimeRound is the compile-time logical time resolution (spec §6). All timestamps
// handled by the kernel are rounded to this grid before use.
const TimeRound = 1e-4

// Kind enumerates the node kinds named in the data model.
type Kind string

const (
	KindRobot           Kind = "robot"
	KindComputationUnit Kind = "computation_unit"
	KindSensor          Kind = "sensor"
	KindObject          Kind = "object"
)

// Position is the 2D pose used for a node's initial placement.
type Position struct {
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Theta float64 `yaml:"theta"`
}

// StrategyConfig names a strategy variant and its opaque construction parameters.
type StrategyConfig struct {
	Variant string         `yaml:"variant"`
	Params  map[string]any `yaml:"params,omitempty"`
}

// SensorConfig describes one sensor instance owned by a node's sensor manager.
type SensorConfig struct {
	Name         string         `yaml:"name"`
	Variant      string         `yaml:"variant"`
	Period       float64        `yaml:"period"`
	PeriodJitter float64        `yaml:"period_jitter,omitempty"`
	Offset       float64        `yaml:"offset,omitempty"`
	Filters      []string       `yaml:"filters,omitempty"`
	FaultModels  []string       `yaml:"fault_models,omitempty"`
	Params       map[string]any `yaml:"params,omitempty"`
}

// NodeConfig is the per-node configuration enumerating strategy variants and parameters.
type NodeConfig struct {
	Name            string           `yaml:"name"`
	Kind            Kind             `yaml:"kind"`
	Model           string           `yaml:"model"`
	Labels          []string         `yaml:"labels,omitempty"`
	InitialPosition Position         `yaml:"initial_position,omitempty"`
	AutoSpawn       bool             `yaml:"autospawn"`
	Physics         *StrategyConfig  `yaml:"physics,omitempty"`
	Navigator       *StrategyConfig  `yaml:"navigator,omitempty"`
	Controller      *StrategyConfig  `yaml:"controller,omitempty"`
	Estimator       *StrategyConfig  `yaml:"estimator,omitempty"`
	BenchEstimators []StrategyConfig `yaml:"bench_estimators,omitempty"`
	Sensors         []SensorConfig   `yaml:"sensors,omitempty"`
}

// TimeAnalysisConfig enables optional wall-clock/logical-time drift reporting.
type TimeAnalysisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ReportPath string `yaml:"report_path,omitempty"`
}

// Scenario is the declarative document describing one simulation run.
type Scenario struct {
	DurationSeconds float64             `yaml:"duration_seconds"`
	Seed            uint64              `yaml:"seed"`
	ResultsPath     string              `yaml:"results_path,omitempty"`
	TimeAnalysis    *TimeAnalysisConfig `yaml:"time_analysis,omitempty"`
	Nodes           []NodeConfig        `yaml:"nodes"`
}

// LoadScenario reads and validates a YAML scenario document from disk.
func LoadScenario(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Config("read scenario %q: %v", path, err)
	}
	return ParseScenario(raw)
}

// ParseScenario decodes and validates a YAML scenario document already in memory.
func ParseScenario(raw []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(raw, &scenario); err != nil {
		return nil, simerr.Config("parse scenario: %v", err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Validate enforces the node-kind invariants from spec §4.8 at configuration time
// rather than at runtime: has_controller ⇒ has_navigator ⇒ has_state_estimator ⇒
// has_physics; has_sensors ⇒ has_state_estimator.
func (s *Scenario) Validate() error {
	if s == nil {
		return simerr.Config("scenario is nil")
	}
	if s.DurationSeconds <= 0 {
		return simerr.Config("duration_seconds must be positive, got %v", s.DurationSeconds)
	}
	seen := make(map[string]struct{}, len(s.Nodes))
	var problems []string
	for _, node := range s.Nodes {
		if strings.TrimSpace(node.Name) == "" {
			problems = append(problems, "node name must not be empty")
			continue
		}
		if _, dup := seen[node.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate node name %q", node.Name))
		}
		seen[node.Name] = struct{}{}

		hasController := node.Controller != nil
		hasNavigator := node.Navigator != nil
		hasEstimator := node.Estimator != nil
		hasPhysics := node.Physics != nil
		hasSensors := len(node.Sensors) > 0

		if hasController && !hasNavigator {
			problems = append(problems, fmt.Sprintf("node %q: has_controller requires has_navigator", node.Name))
		}
		if (hasController || hasNavigator) && !hasEstimator {
			problems = append(problems, fmt.Sprintf("node %q: has_navigator requires has_state_estimator", node.Name))
		}
		if (hasController || hasNavigator || hasEstimator) && !hasPhysics && node.Kind != KindComputationUnit && node.Kind != KindSensor {
			problems = append(problems, fmt.Sprintf("node %q: has_state_estimator requires has_physics", node.Name))
		}
		if hasSensors && !hasEstimator {
			problems = append(problems, fmt.Sprintf("node %q: has_sensors requires has_state_estimator", node.Name))
		}

		switch node.Kind {
		case KindRobot:
		case KindComputationUnit:
			if hasPhysics || hasController {
				problems = append(problems, fmt.Sprintf("node %q: computation units may not own physics or a controller", node.Name))
			}
		case KindSensor:
			if hasPhysics || hasController || hasNavigator {
				problems = append(problems, fmt.Sprintf("node %q: sensor nodes may not own physics, navigator, or controller", node.Name))
			}
		case KindObject:
			if hasController || hasNavigator || hasEstimator || hasSensors {
				problems = append(problems, fmt.Sprintf("node %q: objects may only own physics", node.Name))
			}
		default:
			problems = append(problems, fmt.Sprintf("node %q: unknown kind %q", node.Name, node.Kind))
		}
	}
	if len(problems) > 0 {
		return simerr.Config("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Round rounds a logical timestamp to the TimeRound grid, matching the contract
// that every timestamp surfaced to strategies is pre-rounded.
func Round(t float64) float64 {
	if TimeRound <= 0 {
		return t
	}
	scaled := t / TimeRound
	rounded := float64(int64(scaled + sign(scaled)*0.5))
	return rounded * TimeRound
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
