package main

import "go.livesweep.dev/core/cmd/sweepctl/sweepctlcmd"

func main() { sweepctlcmd.Execute() }
