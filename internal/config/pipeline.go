package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/docflow-orchestrator/internal/core/domain"
)

// Pipeline is the stage topology loaded from the pipeline definition file:
// one worker endpoint, timeout, and human-readable activity label per stage.
type Pipeline struct {
	Stages map[string]StageConfig `yaml:"stages"`
}

type StageConfig struct {
	URL      string   `yaml:"url"`
	Timeout  Duration `yaml:"timeout"`
	Activity string   `yaml:"activity"`
}

// Duration lets timeouts be written as "30s" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func LoadPipeline(path string) (Pipeline, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("read pipeline file: %w", err)
	}

	var p Pipeline
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parse pipeline file: %w", err)
	}

	for _, stage := range domain.PipelineStages() {
		sc, ok := p.Stages[string(stage)]
		if !ok {
			return Pipeline{}, fmt.Errorf("pipeline file missing stage %q", stage)
		}
		if sc.URL == "" {
			return Pipeline{}, fmt.Errorf("pipeline stage %q has no url", stage)
		}
	}
	return p, nil
}

// Activities maps each stage to its display label for the status record.
func (p Pipeline) Activities() map[domain.StageKey]string {
	activities := make(map[domain.StageKey]string, len(p.Stages))
	for name, sc := range p.Stages {
		activities[domain.StageKey(name)] = sc.Activity
	}
	return activities
}
