/*
Package logging configures the process-wide structured logger.
*/
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

/*
Setup configures the default logger from the given level name, falling
back to info when the name is unknown. With reportCaller set every line
carries its call site, which is what the debug level is usually read
with.
*/
func Setup(level string, reportCaller bool) {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}

	log.SetDefault(log.NewWithOptions(os.Stderr, log.Options{
		Level:           parsed,
		ReportCaller:    reportCaller,
		ReportTimestamp: true,
	}))
}
