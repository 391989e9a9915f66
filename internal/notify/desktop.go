package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsCall  = notificationsDest + ".Notify"
	desktopAppName     = "Starwatch"
	desktopExpireMilli = int32(10_000)
)

// Desktop shows notifications through the freedesktop notification service
// on the session bus.
type Desktop struct {
	logger *slog.Logger

	mu   sync.Mutex
	conn *dbus.Conn
	// replaces maps entity ids to the last notification id so a repeat for the
	// same channel replaces the previous bubble instead of stacking.
	replaces map[string]uint32
}

// NewDesktop creates a desktop notifier. The bus is dialed lazily so a
// headless host only fails at notification time.
func NewDesktop(logger *slog.Logger) *Desktop {
	return &Desktop{logger: logger, replaces: make(map[string]uint32)}
}

func (d *Desktop) connect() (*dbus.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: session bus: %v", ErrUnavailable, err)
	}
	d.conn = conn
	return conn, nil
}

// Notify calls org.freedesktop.Notifications.Notify.
func (d *Desktop) Notify(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect()
	if err != nil {
		return err
	}

	hints := map[string]dbus.Variant{
		"category": dbus.MakeVariant("presence.online"),
	}
	actions := []string{"default", "Open"}

	obj := conn.Object(notificationsDest, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsCall, 0,
		desktopAppName,
		d.replaces[n.EntityID],
		"",
		n.Title,
		n.Body,
		actions,
		hints,
		desktopExpireMilli,
	)
	if call.Err != nil {
		// Redial on the next notification in case the bus went away.
		_ = conn.Close()
		d.conn = nil
		return fmt.Errorf("desktop notify: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("desktop notify: %w", err)
	}
	d.replaces[n.EntityID] = id
	d.logger.Debug("desktop notification shown", slog.String("entity_id", n.EntityID), slog.Uint64("notification_id", uint64(id)))
	return nil
}

// Shutdown closes the bus connection.
func (d *Desktop) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
