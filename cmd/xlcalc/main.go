package main

import (
	"os"

	"github.com/nissl-lab/npoi-sub056/cmd/xlcalc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
