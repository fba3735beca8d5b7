// Command flexhal configures and drives GPIO pins on the controllers described
// in a board file.
package main

import "flexhal/cmd/flexhal/cmd"

func main() {
	cmd.Execute()
}
