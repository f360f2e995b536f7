package main

import (
	"rewardengine/internal/server"
)

func main() {
	server.ConfigLoad()
	switch server.GlobalConfig.Mode {
	case "ticker":
		server.TickerInit()
	case "worker":
		server.WorkerInit()
	default:
		server.ApiInit()
	}
}
