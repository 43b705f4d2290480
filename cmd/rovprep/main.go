package main

import (
	"log"

	"github.com/bluerov-ops/rovprep/cmd/rovprep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
