// The main package for the page-analyzer executable.
package main

import (
	"github.com/JakeFAU/page-analyzer/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
