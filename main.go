// ./main.go
package main

import (
	"github.com/xkilldash9x/operis-e2e/cmd"
)

// main is the entry point for the Operis-E2E CLI.
func main() {
	cmd.Execute()
}
