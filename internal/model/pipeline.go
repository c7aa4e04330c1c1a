package model

// Pipeline is the top-level declarative definition of a run
type Pipeline struct {
	Name   string  `yaml:"name" json:"name"`
	Stages []Stage `yaml:"stages" json:"stages"`
}

// Stage is a named group of steps with dependencies on other stages
type Stage struct {
	Name      string   `yaml:"name" json:"name"`
	If        string   `yaml:"if,omitempty" json:"if,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Parallel  bool     `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Steps     []Step   `yaml:"steps" json:"steps"`
}

// Step is a single execution unit within a stage. Exactly one of Run, Uses
// or Pipeline must be set: a shell command, a named capability, or a
// sub-pipeline file.
type Step struct {
	Name            string            `yaml:"name" json:"name"`
	If              string            `yaml:"if,omitempty" json:"if,omitempty"`
	Run             string            `yaml:"run,omitempty" json:"run,omitempty"`
	Uses            string            `yaml:"uses,omitempty" json:"uses,omitempty"`
	With            map[string]string `yaml:"with,omitempty" json:"with,omitempty"`
	Pipeline        string            `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Env             map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Secrets         []string          `yaml:"secrets,omitempty" json:"secrets,omitempty"`
	Timeout         string            `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	ContinueOnError bool              `yaml:"continueOnError,omitempty" json:"continueOnError,omitempty"`
}

// StageByName returns the stage with the given name, if declared.
func (p *Pipeline) StageByName(name string) (*Stage, bool) {
	for i := range p.Stages {
		if p.Stages[i].Name == name {
			return &p.Stages[i], true
		}
	}
	return nil, false
}
