package app

import (
	"os"
	"strings"

	"github.com/jdiaz1993/quickcalories/app/config"

	log "github.com/sirupsen/logrus"
)

// InitLogging configures the process-wide logger from LOG_STYLE and LOG_LEVEL.
func InitLogging(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)
	if strings.EqualFold(cfg.Style, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
