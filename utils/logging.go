package utils

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// SetupLogging Configure the package level logrus logger from the config
func SetupLogging(config LogConfig) {
	log.SetOutput(os.Stdout)

	if config.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{
			FieldMap: log.FieldMap{
				log.FieldKeyTime:  "timestamp",
				log.FieldKeyLevel: "level",
				log.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(config.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, falling back to info", config.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
