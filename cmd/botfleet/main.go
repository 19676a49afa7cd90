package main

import (
	"log"

	"botfleet/core/cmd"
)

func main() {
	if err := cmd.Run(cmd.Options{DefaultConfigPath: "config.yaml"}); err != nil {
		log.Fatalf("botfleet: %v", err)
	}
}
