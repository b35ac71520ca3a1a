// Package notify shows desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications.Notify"
)

// DesktopNotifier sends org.freedesktop.Notifications.Notify calls.
type DesktopNotifier struct {
	conn *dbus.Conn
}

// New connects to the session bus for notification delivery.
func New() (*DesktopNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, err
	}
	return &DesktopNotifier{conn: conn}, nil
}

// Notify shows one notification. timeoutMs of 0 lets the server decide.
func (n *DesktopNotifier) Notify(summary, body string, timeoutMs int) error {
	obj := n.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyInterface, 0,
		"jasper-companion", // app name
		uint32(0),          // replaces id
		"",                 // icon
		summary,
		body,
		[]string{},               // actions
		map[string]dbus.Variant{}, // hints
		int32(timeoutMs),
	)
	return call.Err
}

// Close releases the bus connection.
func (n *DesktopNotifier) Close() error {
	return n.conn.Close()
}
