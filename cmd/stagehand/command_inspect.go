package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stagehand-ci/stagehand/internal/loader"
	"github.com/stagehand-ci/stagehand/internal/model"
)

var inspectLongFormat bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <pipeline-file> [stage]",
	Short: "List stages and steps of a pipeline",
	Long:  "List all stages with their merged properties. Pass a stage name for details.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspectPipeline(args)
	},
}

func registerInspectCommand(root *cobra.Command) {
	root.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVarP(&inspectLongFormat, "long", "l", false, "Show detailed information")
}

func inspectPipeline(args []string) error {
	pipeline, err := loader.Load(args[0])
	if err != nil {
		return err
	}

	if len(args) > 1 {
		stage, ok := pipeline.StageByName(args[1])
		if !ok {
			return fmt.Errorf("stage not found: %s", args[1])
		}
		printStageDetails(stage)
		return nil
	}

	fmt.Printf("Pipeline: %s\n\nStages:\n", pipeline.Name)
	for i := range pipeline.Stages {
		stage := &pipeline.Stages[i]
		if inspectLongFormat {
			printStageDetails(stage)
		} else {
			fmt.Printf("  %s (steps: %d, deps: %d, parallel: %v)\n",
				stage.Name, len(stage.Steps), len(stage.DependsOn), stage.Parallel)
		}
	}

	if !inspectLongFormat {
		fmt.Println("\nRun 'stagehand inspect <file> <stage>' for detailed information")
	}
	return nil
}

func printStageDetails(stage *model.Stage) {
	fmt.Printf("\n[Stage] %s\n", stage.Name)
	if stage.If != "" {
		fmt.Printf("  Condition:  %s\n", stage.If)
	}
	if len(stage.DependsOn) > 0 {
		fmt.Printf("  DependsOn:  %s\n", strings.Join(stage.DependsOn, ", "))
	}
	fmt.Printf("  Parallel:   %v\n", stage.Parallel)

	fmt.Printf("  Steps (%d):\n", len(stage.Steps))
	for _, step := range stage.Steps {
		fmt.Printf("    %s\n", step.Name)
		switch {
		case step.Run != "":
			fmt.Printf("      Run: %s\n", step.Run)
		case step.Uses != "":
			fmt.Printf("      Uses: %s\n", step.Uses)
			for k, v := range step.With {
				fmt.Printf("        %s: %s\n", k, v)
			}
		case step.Pipeline != "":
			fmt.Printf("      Pipeline: %s\n", step.Pipeline)
		}
		if step.If != "" {
			fmt.Printf("      If: %s\n", step.If)
		}
		if len(step.Secrets) > 0 {
			fmt.Printf("      Secrets: %s\n", strings.Join(step.Secrets, ", "))
		}
		if step.Timeout != "" {
			fmt.Printf("      Timeout: %s\n", step.Timeout)
		}
		if step.ContinueOnError {
			fmt.Printf("      ContinueOnError: true\n")
		}
	}
}
