package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-ci/stagehand/internal/loader"
)

var validateCmd = &cobra.Command{
	Use:   "validate <pipeline-file>",
	Short: "Validate a pipeline definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePipeline(args[0])
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)
}

func validatePipeline(path string) error {
	pipeline, err := loader.Load(path)
	if err != nil {
		return err
	}

	steps := 0
	for _, stage := range pipeline.Stages {
		steps += len(stage.Steps)
	}
	fmt.Printf("✓ Pipeline %s is valid (%d stages, %d steps)\n", pipeline.Name, len(pipeline.Stages), steps)
	return nil
}
