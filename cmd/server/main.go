package main

import (
	"github.com/OFFIS-RIT/schemagraph/internal/server"
	"github.com/OFFIS-RIT/schemagraph/internal/util"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger"
	"github.com/OFFIS-RIT/schemagraph/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
