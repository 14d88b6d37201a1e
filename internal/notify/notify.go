// Package notify delivers fire-and-forget desktop notifications. On Linux
// it speaks the freedesktop Notifications interface over the session bus;
// elsewhere notices go to the log. Used for passive notices (external
// change kept local, reload failures) when no editor front-end is
// connected to display them.
package notify

import (
	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
)

// logNotifier writes notices to the daemon log only.
type logNotifier struct {
	log *logging.Logger
}

func (n *logNotifier) Notify(title, body string) {
	n.log.Info("user notice", "title", title, "body", body)
}

// LogOnly returns a notifier that only logs.
func LogOnly(log *logging.Logger) host.Notifier {
	return &logNotifier{log: log}
}
