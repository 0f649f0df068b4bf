package main

import (
	"github.com/mycosphaera/fungarium/cmd"
)

func main() {
	cmd.Execute()
}
