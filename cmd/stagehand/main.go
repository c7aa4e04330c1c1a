package main

import (
	"errors"
	"os"

	"github.com/stagehand-ci/stagehand/internal/loader"
)

// Exit codes: 0 success, 1 stage failure, 2 pipeline definition error.
func main() {
	if err := rootCmd.Execute(); err != nil {
		var defErr *loader.DefinitionError
		if errors.As(err, &defErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
