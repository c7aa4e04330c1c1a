// Package loader reads pipeline definition files, validates them against
// the embedded JSON schema and runs the structural checks that must pass
// before any execution starts.
package loader

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/stagehand-ci/stagehand/internal/condition"
	"github.com/stagehand-ci/stagehand/internal/graph"
	"github.com/stagehand-ci/stagehand/internal/model"
)

//go:embed pipeline.schema.json
var pipelineSchema string

const schemaURI = "stagehand://pipeline.schema.json"

// DefinitionError marks a problem in the pipeline definition itself, as
// opposed to a failure during execution. The CLI maps it to exit code 2.
type DefinitionError struct {
	Path string
	Err  error
}

func (e *DefinitionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid pipeline definition: %v", e.Err)
	}
	return fmt.Sprintf("invalid pipeline definition %s: %v", e.Path, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// The schema is compiled once; Load is called concurrently when parallel
// stage workers resolve composite steps.
var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURI, strings.NewReader(pipelineSchema)); err != nil {
			schemaErr = fmt.Errorf("failed to add pipeline schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURI)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("failed to compile pipeline schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// Load reads and fully validates a pipeline definition file. Sub-pipeline
// references are checked for existence relative to the defining file.
func Load(path string) (*model.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	pipeline, err := Parse(data)
	if err != nil {
		return nil, &DefinitionError{Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	for _, stage := range pipeline.Stages {
		for _, step := range stage.Steps {
			if step.Pipeline == "" {
				continue
			}
			sub := step.Pipeline
			if !filepath.IsAbs(sub) {
				sub = filepath.Join(dir, sub)
			}
			if _, err := os.Stat(sub); err != nil {
				return nil, &DefinitionError{
					Path: path,
					Err:  fmt.Errorf("step %s/%s references missing sub-pipeline %s", stage.Name, step.Name, step.Pipeline),
				}
			}
		}
	}

	return pipeline, nil
}

// Parse validates raw YAML against the schema and the structural rules and
// returns the decoded pipeline.
func Parse(data []byte) (*model.Pipeline, error) {
	// Parse YAML to interface{} first so the schema sees the raw document
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	// Round-trip through JSON so the schema compiler sees JSON-typed values
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert pipeline to JSON: %w", err)
	}
	var jsonDoc interface{}
	if err := json.Unmarshal(jsonData, &jsonDoc); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline JSON: %w", err)
	}

	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(jsonDoc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var pipeline model.Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("failed to decode pipeline: %w", err)
	}

	if err := Validate(&pipeline); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// Validate runs the structural checks that the schema cannot express:
// unique names, resolvable acyclic dependencies, parseable conditions and
// timeouts, and exactly one action form per step.
func Validate(p *model.Pipeline) error {
	if _, err := graph.Build(p.Stages); err != nil {
		return err
	}

	for _, stage := range p.Stages {
		if stage.If != "" {
			if _, err := condition.Parse(stage.If); err != nil {
				return fmt.Errorf("stage %s: %w", stage.Name, err)
			}
		}

		seen := make(map[string]bool, len(stage.Steps))
		for _, step := range stage.Steps {
			if seen[step.Name] {
				return fmt.Errorf("stage %s: duplicate step name %s", stage.Name, step.Name)
			}
			seen[step.Name] = true

			if err := validateStep(stage.Name, step); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateStep(stageName string, step model.Step) error {
	actions := 0
	if step.Run != "" {
		actions++
	}
	if step.Uses != "" {
		actions++
	}
	if step.Pipeline != "" {
		actions++
	}
	if actions != 1 {
		return fmt.Errorf("step %s/%s must declare exactly one of run, uses or pipeline", stageName, step.Name)
	}
	if step.Pipeline != "" && step.Timeout != "" {
		return fmt.Errorf("step %s/%s: sub-pipeline steps cannot set a timeout", stageName, step.Name)
	}
	if len(step.With) > 0 && step.Uses == "" {
		return fmt.Errorf("step %s/%s: with requires uses", stageName, step.Name)
	}

	if step.If != "" {
		if _, err := condition.Parse(step.If); err != nil {
			return fmt.Errorf("step %s/%s: %w", stageName, step.Name, err)
		}
	}
	if step.Timeout != "" {
		if _, err := time.ParseDuration(step.Timeout); err != nil {
			return fmt.Errorf("step %s/%s: invalid timeout %q", stageName, step.Name, step.Timeout)
		}
	}
	return nil
}
