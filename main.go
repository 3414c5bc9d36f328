package main

import "github.com/beamline-tools/beamsync/cmd"

func main() {
	cmd.Execute()
}
