package app

import (
	"strings"

	"github.com/escalaapp/escala/pkg/logger"
)

const defaultLogLevel = "info"

// ConfigureLogging initialises the process-wide logger at the given level.
func ConfigureLogging(level string) error {
	if level = strings.TrimSpace(level); level == "" {
		level = defaultLogLevel
	}
	return logger.Init(level)
}
