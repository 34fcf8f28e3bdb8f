// The main package for the aggregator executable.
package main

import "github.com/JakeFAU/profile-aggregator/cmd"

func main() {
	cmd.Execute()
}
