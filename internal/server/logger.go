package server

import "rewardengine/internal/logging"

var Logger logging.Logger = logging.Nop()

func SetLogger(fileLog string) {
	Logger = logging.New(fileLog)
	Logger.Info("Start program")
}
