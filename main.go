package main

import (
	"github.com/mortar-build/mortar/cmd"
)

func main() {
	cmd.Execute()
}
