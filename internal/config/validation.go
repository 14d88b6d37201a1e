package config

import (
	"fmt"
	"strings"

	"nbwatchd/internal/logging"
	"nbwatchd/internal/reconcile"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig checks every section of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateWatch(&c.Watch)...)
	errs = append(errs, validateConflict(&c.Conflict)...)
	errs = append(errs, validateJournal(&c.Journal)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateIPC(&c.IPC)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateWatch(w *WatchConfig) ValidationErrors {
	var errs ValidationErrors

	if w.RefreshDelayMs <= 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.refresh_delay_ms",
			Message: "must be positive",
		})
	}
	if w.EchoWindowMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.echo_window_ms",
			Message: "must not be negative",
		})
	}
	if w.PollIntervalMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.poll_interval_ms",
			Message: "must not be negative (0 derives from refresh delay)",
		})
	}
	if len(w.Extensions) == 0 {
		errs = append(errs, ValidationError{
			Field:   "watch.extensions",
			Message: "at least one tracked extension is required",
		})
	}
	for _, ext := range w.Extensions {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			errs = append(errs, ValidationError{
				Field:   "watch.extensions",
				Message: fmt.Sprintf("%q is not a valid extension (expected e.g. %q)", ext, ".ipynb"),
			})
		}
	}
	return errs
}

func validateConflict(c *ConflictConfig) ValidationErrors {
	var errs ValidationErrors

	if !reconcile.Resolution(c.Resolution).Valid() {
		errs = append(errs, ValidationError{
			Field:   "conflict.resolution",
			Message: fmt.Sprintf("must be one of ask, keepLocal, useExternal (got %q)", c.Resolution),
		})
	}
	return errs
}

func validateJournal(j *JournalConfig) ValidationErrors {
	var errs ValidationErrors

	if j.Enabled && j.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "journal.path",
			Message: "required when journal is enabled",
		})
	}
	if j.BusyTimeoutMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "journal.busy_timeout_ms",
			Message: "must not be negative",
		})
	}
	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := logging.ParseLevel(l.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: err.Error(),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("must be text or json (got %q)", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr", "file", "both", "none":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("must be stdout, stderr, file, both, or none (got %q)", l.Output),
		})
	}

	if (strings.EqualFold(l.Output, "file") || strings.EqualFold(l.Output, "both")) && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output includes file",
		})
	}
	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return nil
	}
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "required when ipc is enabled",
		})
	}
	if i.MaxConnections <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "must be positive",
		})
	}
	if i.TimeoutSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "must be positive",
		})
	}
	return errs
}
