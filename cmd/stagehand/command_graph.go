package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stagehand-ci/stagehand/internal/loader"
	"github.com/stagehand-ci/stagehand/internal/report"
)

var graphShowOrder bool

var graphCmd = &cobra.Command{
	Use:   "graph <pipeline-file>",
	Short: "Show the stage DAG of a pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showGraph(args[0])
	},
}

func registerGraphCommand(root *cobra.Command) {
	root.AddCommand(graphCmd)

	graphCmd.Flags().BoolVar(&graphShowOrder, "order", false, "Show the deterministic execution order instead of the tree")
}

func showGraph(path string) error {
	pipeline, err := loader.Load(path)
	if err != nil {
		return err
	}

	viewer := report.NewPipelineViewer(pipeline)
	if graphShowOrder {
		out, err := viewer.ViewOrder()
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	}

	fmt.Print(viewer.ViewDAG())
	return nil
}
