package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "researchhive"}

	root.AddCommand(serveCMD(), migrateCMD(), researchCMD(), workerCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
