// The main package for the euctr-harvester executable.
package main

import (
	"github.com/Bilalkamal/EU-Clinical-Trials-Scraper/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
