package main

import (
	"github.com/sidkik/replisync/cmd"
	"github.com/sidkik/replisync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
