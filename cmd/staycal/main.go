package main

import (
	"os"

	_ "time/tzdata"

	appLog "staycal/internal/log"
)

const version = "0.3.0"

func main() {
	defer appLog.Sync()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
