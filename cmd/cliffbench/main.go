package main

import (
	"os"

	"github.com/G-Research/cliffbench/cmd/cliffbench/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
