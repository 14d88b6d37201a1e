//go:build linux

package notify

import (
	"sync"

	"github.com/godbus/dbus/v5"

	"nbwatchd/internal/host"
	"nbwatchd/internal/logging"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notificationsMethod  = "org.freedesktop.Notifications.Notify"

	// expireTimeoutMs is how long a notice stays on screen.
	expireTimeoutMs = int32(5000)
)

// dbusNotifier sends desktop notifications over the session bus. The
// connection is established lazily and reused; any failure falls back to
// logging so a notice is never lost silently.
type dbusNotifier struct {
	log  *logging.Logger
	mu   sync.Mutex
	conn *dbus.Conn
}

// New returns the platform notifier.
func New(log *logging.Logger) host.Notifier {
	return &dbusNotifier{log: log}
}

func (n *dbusNotifier) connection() (*dbus.Conn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.conn != nil {
		return n.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	n.conn = conn
	return conn, nil
}

// Notify implements host.Notifier.
func (n *dbusNotifier) Notify(title, body string) {
	conn, err := n.connection()
	if err != nil {
		n.log.Warn("session bus unavailable, logging notice instead", "error", err)
		n.log.Info("user notice", "title", title, "body", body)
		return
	}

	obj := conn.Object(notificationsService, dbus.ObjectPath(notificationsPath))
	call := obj.Call(notificationsMethod, 0,
		"nbwatchd",              // app name
		uint32(0),               // no notification to replace
		"",                      // default icon
		title, body,             // summary, body
		[]string{},              // no actions
		map[string]dbus.Variant{},
		expireTimeoutMs,
	)
	if call.Err != nil {
		n.log.Warn("desktop notification failed", "error", call.Err)
		n.log.Info("user notice", "title", title, "body", body)
	}
}
