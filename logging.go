package calc

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// LoggerName is the commonlog name engines log under unless WithLogger
// gives them another logger
const LoggerName = "calc"

func defaultLogger() commonlog.Logger {
	return commonlog.GetLogger(LoggerName)
}

// LogSettings configures the commonlog backend for hosts that let the
// engine set up logging
type LogSettings struct {
	// Verbosity 0 logs errors and warnings only; each step adds a level
	// down to debug. negative disables logging
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// ConfigureLogging applies log settings to the process-wide commonlog
// backend. an empty file logs to stderr.
func ConfigureLogging(s LogSettings) {
	var path *string
	if s.File != "" {
		path = &s.File
	}
	commonlog.Configure(s.Verbosity, path)
}
