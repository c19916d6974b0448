package main

import (
	"os"

	"github.com/insightq/analysis-jobs/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
