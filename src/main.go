package main

import (
	"raftkv/src/cli"
	"raftkv/src/config"
)

func main() {
	config.Config.NodeIds = []uint8{1, 2, 3, 4, 5}
	config.Config.ElectionTimeoutMinTicks = 10
	config.Config.ElectionTimeoutMaxTicks = 20
	config.Config.HeartbeatIntervalTicks = 3
	config.Config.TickIntervalMilliseconds = 100
	config.Config.HttpApiAddress = "localhost:8080"

	cli.StartCli()
}
