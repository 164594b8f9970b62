package main

import (
	"github.com/datlabs/r2recon/cmd"
)

func main() {
	cmd.Execute()
}
