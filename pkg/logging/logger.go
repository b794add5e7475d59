// Package logging configures the global zerolog logger for the Photos client
// and names the components and fields its packages log with.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used in the "component" field.
const (
	ComponentThrottler  = "throttler"
	ComponentPagination = "pagination"
	ComponentClient     = "gphotos-client"
	ComponentCLI        = "gphotos-cli"
)

// Field names shared across packages.
const (
	FieldComponent       = "component"
	FieldRunID           = "run_id"
	FieldRunName         = "name"
	FieldRemainingBudget = "remaining_budget"
	FieldWait            = "wait"
)

// Options selects how the CLI or an embedding program logs.
type Options struct {
	// Verbose switches the default level from info to debug.
	Verbose bool

	// Level is an explicit level name (debug, info, warn, error).
	// It wins over Verbose when set.
	Level string

	// Pretty writes human-readable console lines instead of JSON.
	Pretty bool

	// Output receives the log lines (default: os.Stderr).
	Output io.Writer
}

// ResolveLevel returns the minimum level for o.
func (o Options) ResolveLevel() (zerolog.Level, error) {
	name := strings.ToLower(strings.TrimSpace(o.Level))
	switch name {
	case "":
		if o.Verbose {
			return zerolog.DebugLevel, nil
		}
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel, fmt.Errorf("invalid log level %q", o.Level)
	}
	return level, nil
}

// Setup installs the global logger described by opts and returns it.
// An unknown level leaves the global logger untouched.
func Setup(opts Options) (zerolog.Logger, error) {
	level, err := opts.ResolveLevel()
	if err != nil {
		return log.Logger, err
	}

	output := opts.Output
	if output == nil {
		output = os.Stderr
	}
	if opts.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger, nil
}

// For returns a child of the global logger tagged with component.
func For(component string) zerolog.Logger {
	return log.With().Str(FieldComponent, component).Logger()
}

// Run tags logger with the identity of one pagination run.
func Run(logger zerolog.Logger, runID, name string) zerolog.Logger {
	return logger.With().
		Str(FieldRunID, runID).
		Str(FieldRunName, name).
		Logger()
}

// Levels in use:
//
//	debug  throttle waits, page fetches with remaining_budget, prefetch stop
//	info   CLI walk finished, checkpoint cleared
//	warn   API errors, failed runs, Redis unavailable for resume
//	error  CLI exit
