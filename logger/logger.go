package logger

import (
	"os"

	"github.com/flashguard/flashguard/config"
	log "github.com/sirupsen/logrus"
)

var logLevel log.Level

// InitLogger initializes the service logger
func InitLogger() {
	cfg := config.Get()

	switch cfg.LogLevel {
	case "DEBUG":
		logLevel = log.DebugLevel
	case "ERROR":
		logLevel = log.ErrorLevel
	default:
		logLevel = log.InfoLevel
	}

	if !cfg.Debug {
		log.SetFormatter(&log.JSONFormatter{})
	}

	log.SetOutput(os.Stdout)
	log.SetLevel(logLevel)
}

// LogErrorAndPanic records a fatal startup error and exits
func LogErrorAndPanic(msg string, err error) {
	if err != nil {
		log.WithField("error", err.Error()).Error(msg)
		panic(err)
	}
}
