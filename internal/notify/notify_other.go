//go:build !linux

package notify

import (
	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
)

// New returns the platform notifier. Platforms without a session bus log
// notices instead.
func New(log *logging.Logger) host.Notifier {
	return LogOnly(log)
}
