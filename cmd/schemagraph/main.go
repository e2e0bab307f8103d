package main

import (
	"os"

	"github.com/OFFIS-RIT/schemagraph/internal/cli"
	"github.com/OFFIS-RIT/schemagraph/internal/util"
)

func main() {
	util.LoadEnv()
	os.Exit(cli.Execute())
}
