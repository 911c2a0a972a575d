// ./main.go
package main

import (
	"github.com/xkilldash9x/gptrelay/cmd"
)

// main is the entry point for the gptrelay binary. All command-line parsing,
// configuration, and execution happens in the cmd package.
func main() {
	cmd.Execute()
}
