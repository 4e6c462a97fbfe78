// Package logging provides the process-wide structured logger for
// auditfwd, backed by hashicorp/go-hclog.
package logging

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Logger is the structured, leveled logger every component in this
// module accepts as a collaborator.
type Logger = hclog.Logger

var (
	mu            sync.RWMutex
	defaultLogger Logger
)

// Config controls how NewLogger builds its hclog.Logger.
type Config struct {
	Name   string
	Level  hclog.Level
	Output *os.File
	JSON   bool
}

// DefaultConfig returns a sensible default: info level, human-readable
// output to stderr, named "auditfwd".
func DefaultConfig() *Config {
	return &Config{
		Name:   "auditfwd",
		Level:  hclog.Info,
		Output: os.Stderr,
	}
}

// NewLogger builds a Logger from config, filling in defaults for any zero
// fields.
func NewLogger(config *Config) Logger {
	if config == nil {
		config = DefaultConfig()
	}
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	name := config.Name
	if name == "" {
		name = "auditfwd"
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      config.Level,
		Output:     output,
		JSONFormat: config.JSON,
	})
}

// Default returns the process-wide default logger, creating one on first
// use.
func Default() Logger {
	mu.RLock()
	if defaultLogger != nil {
		defer mu.RUnlock()
		return defaultLogger
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if defaultLogger == nil {
		defaultLogger = NewLogger(nil)
	}
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(logger Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}
