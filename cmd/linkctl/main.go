// Command linkctl provisions and controls the link radio of a unit.
package main

import (
	"os"

	"github.com/radio-control/linkctl/cmd/linkctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
