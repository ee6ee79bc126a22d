// The main package for the webfetch executable.
package main

import "github.com/JakeFAU/webfetch-archive/cmd"

func main() {
	cmd.Execute()
}
