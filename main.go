// The main package for the webfetch executable.
package main

import "github.com/JakeFAU/webfetch-archive/cmd"

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
