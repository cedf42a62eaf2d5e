package main

import (
	"os"

	"github.com/danieleschmidt/nerf-edge-sched/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
